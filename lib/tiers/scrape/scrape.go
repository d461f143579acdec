// Package scrape is the second extraction tier: a detection-resistant
// HTTP fetch of the public profile page using the task's assigned
// identity, parsed with goquery for follower/post/engagement signals.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("tiers/scrape")

type Config struct {
	Timeout time.Duration `json:"timeout"`
	// RequestsPerSecond caps this engine's outbound request rate.
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
}

type Engine struct {
	cfg Config
	// limiter lives on the engine rather than the per-identity clients,
	// which are rebuilt for every attempt.
	limiter *rate.Limiter
}

func New(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

func (e *Engine) Tier() kpi.Tier { return kpi.TierScrape }

// sessionCookie is the wire form of the opaque cookie blob the identity
// manager persists between extractions of the same profile.
type sessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// newClient builds a throwaway resty client bound to one identity:
// its user agent, locale, proxy, and restored session cookies, with the
// cloudflare bypass transport underneath.
func (e *Engine) newClient(id *identity.Identity) *resty.Client {
	client := restyutil.NewClient(e.cfg.Timeout, 0)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	restyutil.Instrument(client, "tiers/scrape")

	if id != nil {
		client.SetHeader("user-agent", id.Fingerprint.UserAgent)
		client.SetHeader("accept-language", id.Fingerprint.Locale)
		if id.Proxy != nil {
			client.SetProxy(id.Proxy.Address)
		}
		for _, c := range decodeCookies(id.Cookies) {
			client.SetCookie(&http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
		}
	}
	return client
}

func decodeCookies(blob []byte) []sessionCookie {
	if len(blob) == 0 {
		return nil
	}
	var cookies []sessionCookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		// A corrupt session is treated as no session.
		return nil
	}
	return cookies
}

func encodeCookies(cookies []*http.Cookie) []byte {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]sessionCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, sessionCookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return blob
}

// Attempt fetches the profile page and parses the platform's metrics
// out of it. A recognized challenge response fails with CaptchaDetected
// so the orchestrator escalates instead of retrying a burned identity.
func (e *Engine) Attempt(ctx context.Context, req kpi.ExtractionRequest, id *identity.Identity) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "scrape.Attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(req.Platform)),
		attribute.String("url", req.ProfileURL),
	)

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, kpi.NewError(kpi.KindOf(err), req.Platform, err)
	}

	client := e.newClient(id)
	res, err := client.R().SetContext(ctx).Get(req.ProfileURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, kpi.NewError(kpi.KindOf(err), req.Platform, err)
	}

	body := res.Body()
	if kind, ok := classifyResponse(res.StatusCode(), body); ok {
		span.AddEvent("challenge response", trace.WithAttributes(attribute.String("kind", string(kind))))
		return nil, kpi.Errorf(kind, req.Platform, "scrape blocked with status %d", res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document parse failed")
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}

	result, err := ParseProfile(req.Platform, doc, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "metric extraction failed")
		return nil, err
	}

	// Carry the fresh session back so the identity manager can persist it.
	if id != nil {
		if blob := encodeCookies(res.Cookies()); blob != nil {
			id.Cookies = blob
		}
	}

	result.FetchedAt = time.Now()
	return result, nil
}
