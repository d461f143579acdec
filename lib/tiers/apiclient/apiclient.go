// Package apiclient is the first extraction tier: credentialed calls to
// each platform's official API, mapped into the uniform result shape.
// Platforms without a usable metrics API report Unavailable so the
// orchestrator skips straight to scraping without burning retries.
package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("tiers/apiclient")

// Credentials holds per-platform API secrets. An empty field means the
// platform has no tier-1 integration for this deployment.
type Credentials struct {
	FacebookAccessToken string `json:"facebook_access_token"`
	YouTubeAPIKey       string `json:"youtube_api_key"`
	TwitterBearerToken  string `json:"twitter_bearer_token"`
	TikTokAccessToken   string `json:"tiktok_access_token"`
}

type Config struct {
	Timeout time.Duration `json:"timeout"`
	// RequestsPerSecond caps outbound calls across all platform APIs.
	RequestsPerSecond float64     `json:"requests_per_second"`
	Credentials       Credentials `json:"credentials"`
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
	cfg    Config
	client *resty.Client
	creds  Credentials
}

func New(cfg Config) *Engine {
	cfg.defaults()
	client := restyutil.NewClient(cfg.Timeout, rate.Limit(cfg.RequestsPerSecond))
	restyutil.Instrument(client, "tiers/apiclient")
	return &Engine{cfg: cfg, client: client, creds: cfg.Credentials}
}

func (e *Engine) Tier() kpi.Tier { return kpi.TierAPI }

// Attempt dispatches to the platform's API client. The identity is
// unused here: official APIs authenticate with credentials, not with
// browser fingerprints.
func (e *Engine) Attempt(ctx context.Context, req kpi.ExtractionRequest, _ *identity.Identity) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "apiclient.Attempt")
	defer span.End()
	span.SetAttributes(attribute.String("platform", string(req.Platform)))

	var (
		res *kpi.ExtractionResult
		err error
	)
	switch req.Platform {
	case kpi.YouTube:
		res, err = e.youtubeChannel(ctx, req)
	case kpi.Facebook:
		res, err = e.facebookPage(ctx, req)
	case kpi.Twitter:
		res, err = e.twitterUser(ctx, req)
	case kpi.TikTok:
		res, err = e.tiktokBusiness(ctx, req)
	case kpi.Instagram:
		// The Graph API only exposes follower metrics to linked business
		// accounts, which profile-URL extraction does not have.
		err = kpi.Errorf(kpi.KindUnavailable, req.Platform, "instagram graph API requires a linked business account")
	case kpi.LinkedIn:
		err = kpi.Errorf(kpi.KindUnavailable, req.Platform, "linkedin API requires organization scopes")
	default:
		err = kpi.Errorf(kpi.KindUnavailable, req.Platform, "no official API integration")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "api attempt failed")
		return nil, err
	}
	return res, nil
}

// classify maps an API response status to the shared error taxonomy.
func classify(platform kpi.Platform, res *resty.Response, err error) error {
	if err != nil {
		return kpi.NewError(kpi.KindNetworkError, platform, err)
	}
	switch {
	case res.StatusCode() == 401 || res.StatusCode() == 403:
		return kpi.Errorf(kpi.KindAuthRequired, platform, "api responded %d", res.StatusCode())
	case res.StatusCode() == 429:
		return kpi.Errorf(kpi.KindRateLimited, platform, "api responded 429")
	case res.StatusCode() >= 400:
		return kpi.Errorf(kpi.KindNetworkError, platform, "api responded %d", res.StatusCode())
	}
	return nil
}

// handleFromURL pulls the profile handle out of a URL path, e.g.
// "https://twitter.com/example" -> "example",
// "https://tiktok.com/@example" -> "example".
func handleFromURL(profileURL string) (string, error) {
	u, err := url.Parse(profileURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("no profile handle in %q", profileURL)
	}
	handle := parts[len(parts)-1]
	return strings.TrimPrefix(handle, "@"), nil
}
