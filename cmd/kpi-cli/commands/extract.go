package commands

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"socialkpi-backend/lib/configutil"
	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/resultcache"
	"socialkpi-backend/lib/serviceutil"
	"socialkpi-backend/lib/tiers/apiclient"
	"socialkpi-backend/lib/tiers/scrape"
	"socialkpi-backend/lib/tiers/simulate"
	"socialkpi-backend/services/extractor"

	"github.com/spf13/cobra"
)

type Config struct {
	Identity  identity.Config    `json:"identity"`
	Cache     resultcache.Config `json:"cache"`
	Api       apiclient.Config   `json:"api"`
	Scrape    scrape.Config      `json:"scrape"`
	Simulate  simulate.Config    `json:"simulate"`
	Extractor extractor.Config   `json:"extractor"`
}

var profileFlags = map[kpi.Platform]*string{}

func init() {
	for _, platform := range kpi.Platforms() {
		profileFlags[platform] = extractCmd.Flags().String(
			string(platform), "", "Profile URL for "+string(platform)+".")
	}
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [--instagram <url>] [--youtube <url>] ...",
	Short: "Extracts KPIs for the given profile URLs and prints them as JSON.",
	Run: func(cmd *cobra.Command, args []string) {
		var reqs []kpi.ExtractionRequest
		for platform, url := range profileFlags {
			if *url != "" {
				reqs = append(reqs, kpi.ExtractionRequest{Platform: platform, ProfileURL: *url})
			}
		}
		if len(reqs) == 0 {
			serviceutil.Fatal("no profile URLs given", errors.New("pass at least one platform flag"))
		}

		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			serviceutil.Fatal("read config", err)
		}

		identities, err := identity.NewManager(cfg.Identity, nil, slog.Default())
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

		t1 := time.Now()
		outcomes := svc.ExtractBatch(cmd.Context(), reqs)
		slog.Info("extraction time", "seconds", time.Since(t1).Seconds())

		out := make(map[kpi.Platform]any, len(outcomes))
		for platform, outcome := range outcomes {
			if outcome.Err != nil {
				out[platform] = map[string]string{"error": string(kpi.KindOf(outcome.Err))}
				continue
			}
			out[platform] = extractor.ResultDTO(outcome.Result)
		}

		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			serviceutil.Fatal("encode results", err)
		}
		os.Stdout.Write(append(encoded, '\n'))
	},
}
