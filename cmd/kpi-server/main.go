package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"socialkpi-backend/lib/configutil"
	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/resultcache"
	"socialkpi-backend/lib/serviceutil"
	"socialkpi-backend/lib/telemetry"
	"socialkpi-backend/lib/tiers/apiclient"
	"socialkpi-backend/lib/tiers/scrape"
	"socialkpi-backend/lib/tiers/simulate"
	"socialkpi-backend/services/extractor"
)

type Config struct {
	Port int `json:"port"`
	// SessionDb is the sqlite file for persisted session cookies. Empty
	// disables persistence.
	SessionDb string `json:"session_db"`

	Identity  identity.Config    `json:"identity"`
	Cache     resultcache.Config `json:"cache"`
	Api       apiclient.Config   `json:"api"`
	Scrape    scrape.Config      `json:"scrape"`
	Simulate  simulate.Config    `json:"simulate"`
	Extractor extractor.Config   `json:"extractor"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	telemetry.InitSlog(*verbose)
	ctx := serviceutil.SignalContext()

	if _, err := telemetry.SetupFromEnv(ctx, "kpi-server"); err != nil {
		slog.Warn("telemetry export disabled", "err", err)
	}

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config.json5 found, running with defaults")
	} else if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	var sessions *identity.SessionStore
	if cfg.SessionDb != "" {
		sessions, err = identity.OpenSessionStore(cfg.SessionDb)
		if err != nil {
			serviceutil.Fatal("open session store", err)
		}
		defer sessions.Close()
	}

	identities, err := identity.NewManager(cfg.Identity, sessions, slog.Default())
	if err != nil {
		serviceutil.Fatal("init identity manager", err)
	}

	cache, err := resultcache.Open(cfg.Cache)
	if err != nil {
		serviceutil.Fatal("open result cache", err)
	}
	defer cache.Close()

	svc := extractor.NewService(
		cfg.Extractor,
		[]extractor.TierEngine{
			apiclient.New(cfg.Api),
			scrape.New(cfg.Scrape),
			simulate.New(cfg.Simulate),
		},
		identities,
		cache,
		slog.Default(),
	)

	go serviceutil.StartHttpServer(ctx, cfg.Port, extractor.NewRouter(svc))
	<-ctx.Done()
}
