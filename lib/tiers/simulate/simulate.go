// Package simulate is the last-resort extraction tier: a full stealth
// browser session that reproduces human interaction timing before
// reading the same DOM signals the scraping tier parses. Strictly more
// expensive than scraping and only driven once that tier is confirmed
// blocked.
package simulate

import (
	"bytes"
	"context"
	"time"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/tiers/scrape"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("tiers/simulate")

type Config struct {
	Headless bool `json:"headless"`
	// ScrollCount is how many read-scroll rounds a visit performs.
	ScrollCount int `json:"scroll_count"`
	// PacingSeed fixes the interaction randomness for tests.
	PacingSeed int64 `json:"-"`
}

func (c *Config) defaults() {
	if c.ScrollCount <= 0 {
		c.ScrollCount = 3
	}
}

type Engine struct {
	cfg   Config
	pacer *Pacer
}

func New(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, pacer: NewPacer(cfg.PacingSeed)}
}

func (e *Engine) Tier() kpi.Tier { return kpi.TierSimulate }

// Attempt drives a stealth browser through the profile page with human
// pacing, then parses the rendered DOM. Each attempt launches its own
// Chrome so a burned session never leaks into the next identity.
func (e *Engine) Attempt(ctx context.Context, req kpi.ExtractionRequest, id *identity.Identity) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "simulate.Attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(req.Platform)),
		attribute.String("url", req.ProfileURL),
	)

	html, err := e.renderProfile(ctx, req, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "browser session failed")
		return nil, kpi.NewError(kpi.KindOf(err), req.Platform, err)
	}

	if kind, blocked := scrape.ClassifyBody([]byte(html)); blocked {
		return nil, kpi.Errorf(kind, req.Platform, "challenge survived human simulation")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}
	result, err := scrape.ParseProfile(req.Platform, doc, []byte(html))
	if err != nil {
		return nil, err
	}

	// Same extraction rules, weaker provenance.
	result.TierUsed = kpi.TierSimulate
	result.Confidence = kpi.ConfidenceLow
	result.FetchedAt = time.Now()
	return result, nil
}

func (e *Engine) renderProfile(ctx context.Context, req kpi.ExtractionRequest, id *identity.Identity) (string, error) {
	l := launcher.New().
		Headless(e.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if id != nil && id.Proxy != nil {
		l = l.Proxy(id.Proxy.Address)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return "", err
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", err
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", err
	}

	if id != nil {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      id.Fingerprint.UserAgent,
			AcceptLanguage: id.Fingerprint.Locale,
		})
		if err != nil {
			return "", err
		}
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             id.Fingerprint.ViewportWidth,
			Height:            id.Fingerprint.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return "", err
		}
	}

	if err := page.Context(ctx).Navigate(req.ProfileURL); err != nil {
		return "", err
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return "", err
	}

	if err := e.interact(ctx, page, id); err != nil {
		return "", err
	}

	return page.Context(ctx).HTML()
}

// interact performs the human-behavior pass: initial reading pause,
// curved mouse excursions, and uneven scroll-and-dwell rounds.
func (e *Engine) interact(ctx context.Context, page *rod.Page, id *identity.Identity) error {
	if err := e.pacer.Wait(ctx); err != nil {
		return err
	}

	width, height := 1280, 800
	if id != nil {
		width, height = id.Fingerprint.ViewportWidth, id.Fingerprint.ViewportHeight
	}

	pos := point{X: float64(width) / 2, Y: float64(height) / 2}
	for i := 0; i < e.pacer.MoveCount(); i++ {
		target := e.pacer.RandomTarget(width, height)
		for _, pt := range e.pacer.MousePath(pos, target, 12) {
			if err := page.Mouse.MoveTo(proto.Point{X: pt.X, Y: pt.Y}); err != nil {
				return err
			}
			if err := sleep(ctx, e.pacer.StepPause()/4); err != nil {
				return err
			}
		}
		pos = target
	}

	for i := 0; i < e.cfg.ScrollCount; i++ {
		for _, dy := range e.pacer.ScrollSteps(400 + i*200) {
			if _, err := page.Eval(`(dy) => window.scrollBy(0, dy)`, dy); err != nil {
				return err
			}
			if err := sleep(ctx, e.pacer.StepPause()); err != nil {
				return err
			}
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
