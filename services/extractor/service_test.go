package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/resultcache"
	"socialkpi-backend/lib/retrypolicy"
	"socialkpi-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	tier  kpi.Tier
	calls atomic.Int64
	fn    func(ctx context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error)
}

func (f *fakeEngine) Tier() kpi.Tier { return f.tier }

func (f *fakeEngine) Attempt(ctx context.Context, req kpi.ExtractionRequest, _ *identity.Identity) (*kpi.ExtractionResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

func succeeding(tier kpi.Tier, followers int64) func(context.Context, kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	return func(_ context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		return &kpi.ExtractionResult{
			Platform:   req.Platform,
			Followers:  followers,
			Engagement: kpi.ComputeEngagement(followers, kpi.EngagementMetrics{}),
			TierUsed:   tier,
			FetchedAt:  time.Now(),
			Confidence: kpi.ConfidenceForTier(tier),
		}, nil
	}
}

func failing(kind kpi.ErrorKind) func(context.Context, kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	return func(_ context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		return nil, kpi.Errorf(kind, req.Platform, "induced failure")
	}
}

func newTestService(t *testing.T, engines ...TierEngine) *Service {
	t.Helper()
	t.Cleanup(testutil.Setup(t, "extractor"))

	ids, err := identity.NewManager(identity.Config{
		Seed:      1,
		UserAgent: func() string { return "test-agent" },
	}, nil, nil)
	require.NoError(t, err)

	cache, err := resultcache.Open(resultcache.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return NewService(Config{
		PlatformRPS:    1000,
		AttemptTimeout: 5 * time.Second,
		Retry:          retrypolicy.Config{Base: time.Millisecond, Cap: 2 * time.Millisecond, Seed: 1},
	}, engines, ids, cache, nil)
}

func TestExtractBatchKeySetEquality(t *testing.T) {
	svc := newTestService(t, &fakeEngine{tier: kpi.TierAPI, fn: succeeding(kpi.TierAPI, 100)})

	reqs := []kpi.ExtractionRequest{
		{Platform: kpi.Instagram, ProfileURL: "https://instagram.com/a"},
		{Platform: kpi.Twitter, ProfileURL: "https://twitter.com/b"},
		{Platform: kpi.TikTok, ProfileURL: "https://tiktok.com/@c"},
	}
	outcomes := svc.ExtractBatch(context.Background(), reqs)

	require.Len(t, outcomes, len(reqs))
	for _, req := range reqs {
		outcome, ok := outcomes[req.Platform]
		require.True(t, ok)
		require.NoError(t, outcome.Err)
		require.Equal(t, req.Platform, outcome.Result.Platform)
	}
}

func TestCaptchaEscalatesWithoutRetryingScrape(t *testing.T) {
	api := &fakeEngine{tier: kpi.TierAPI, fn: failing(kpi.KindUnavailable)}
	scrape := &fakeEngine{tier: kpi.TierScrape, fn: failing(kpi.KindCaptchaDetected)}
	simulate := &fakeEngine{tier: kpi.TierSimulate, fn: succeeding(kpi.TierSimulate, 500)}
	svc := newTestService(t, api, scrape, simulate)

	outcomes := svc.ExtractBatch(context.Background(), []kpi.ExtractionRequest{
		{Platform: kpi.Instagram, ProfileURL: "https://instagram.com/blocked"},
	})

	outcome := outcomes[kpi.Instagram]
	require.NoError(t, outcome.Err)
	require.Equal(t, kpi.TierSimulate, outcome.Result.TierUsed)
	require.Equal(t, kpi.ConfidenceLow, outcome.Result.Confidence)
	require.Equal(t, int64(1), api.calls.Load())
	require.Equal(t, int64(1), scrape.calls.Load())
	require.Equal(t, int64(1), simulate.calls.Load())
}

func TestPartialBatchIsolation(t *testing.T) {
	engine := &fakeEngine{tier: kpi.TierScrape}
	engine.fn = func(_ context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		if req.Platform == kpi.Twitter {
			return nil, kpi.Errorf(kpi.KindParseError, req.Platform, "layout changed")
		}
		return succeeding(kpi.TierScrape, 50000)(context.Background(), req)
	}
	svc := newTestService(t, engine)

	outcomes := svc.ExtractBatch(context.Background(), []kpi.ExtractionRequest{
		{Platform: kpi.Twitter, ProfileURL: "https://twitter.com/x"},
		{Platform: kpi.TikTok, ProfileURL: "https://tiktok.com/@y"},
	})

	require.Error(t, outcomes[kpi.Twitter].Err)
	require.Equal(t, kpi.KindParseError, kpi.KindOf(outcomes[kpi.Twitter].Err))
	require.NoError(t, outcomes[kpi.TikTok].Err)
	require.Equal(t, int64(50000), outcomes[kpi.TikTok].Result.Followers)
}

func TestInstagramEndToEnd(t *testing.T) {
	api := &fakeEngine{tier: kpi.TierAPI, fn: failing(kpi.KindUnavailable)}
	scrape := &fakeEngine{tier: kpi.TierScrape}
	scrape.fn = func(_ context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		return &kpi.ExtractionResult{
			Platform:  req.Platform,
			Followers: 24500,
			Posts:     85,
			Engagement: kpi.ComputeEngagement(24500, kpi.EngagementMetrics{
				AvgLikes:    kpi.Count(780),
				AvgComments: kpi.Count(42),
			}),
			TierUsed:   kpi.TierScrape,
			FetchedAt:  time.Now(),
			Confidence: kpi.ConfidenceMedium,
		}, nil
	}
	svc := newTestService(t, api, scrape)

	outcomes := svc.ExtractBatch(context.Background(), []kpi.ExtractionRequest{
		{Platform: kpi.Instagram, ProfileURL: "https://instagram.com/example"},
	})

	result := outcomes[kpi.Instagram].Result
	require.NoError(t, outcomes[kpi.Instagram].Err)
	require.Equal(t, int64(24500), result.Followers)
	require.Equal(t, int64(85), result.Posts)
	require.Equal(t, int64(822), result.Engagement.TotalEngagement)
	require.InDelta(t, 3.35, *result.Engagement.EngagementRate, 0.01)
	require.Equal(t, kpi.TierScrape, result.TierUsed)
	require.Equal(t, kpi.ConfidenceMedium, result.Confidence)
}

func TestRetryBudgetThenEscalate(t *testing.T) {
	api := &fakeEngine{tier: kpi.TierAPI, fn: failing(kpi.KindRateLimited)}
	scrape := &fakeEngine{tier: kpi.TierScrape, fn: succeeding(kpi.TierScrape, 10)}
	svc := newTestService(t, api, scrape)

	outcomes := svc.ExtractBatch(context.Background(), []kpi.ExtractionRequest{
		{Platform: kpi.Facebook, ProfileURL: "https://facebook.com/page"},
	})

	require.NoError(t, outcomes[kpi.Facebook].Err)
	// Retryable failures consume the full tier budget before escalation.
	require.Equal(t, int64(3), api.calls.Load())
	require.Equal(t, kpi.TierScrape, outcomes[kpi.Facebook].Result.TierUsed)
}

func TestCachedResultSkipsEngines(t *testing.T) {
	engine := &fakeEngine{tier: kpi.TierAPI, fn: succeeding(kpi.TierAPI, 777)}
	svc := newTestService(t, engine)

	req := []kpi.ExtractionRequest{{Platform: kpi.YouTube, ProfileURL: "https://youtube.com/@chan"}}
	first := svc.ExtractBatch(context.Background(), req)
	require.NoError(t, first[kpi.YouTube].Err)

	second := svc.ExtractBatch(context.Background(), req)
	require.NoError(t, second[kpi.YouTube].Err)
	require.Equal(t, int64(777), second[kpi.YouTube].Result.Followers)
	require.Equal(t, int64(1), engine.calls.Load())
}

func TestConcurrentSameKeyDeduplicated(t *testing.T) {
	entered := make(chan struct{}, 2)
	gate := make(chan struct{})
	engine := &fakeEngine{tier: kpi.TierAPI}
	engine.fn = func(_ context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		entered <- struct{}{}
		<-gate
		return succeeding(kpi.TierAPI, 321)(context.Background(), req)
	}
	svc := newTestService(t, engine)

	req := []kpi.ExtractionRequest{{Platform: kpi.LinkedIn, ProfileURL: "https://linkedin.com/company/acme"}}

	var wg sync.WaitGroup
	results := make([]map[kpi.Platform]Outcome, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.ExtractBatch(context.Background(), req)
		}()
	}

	<-entered
	// Give the second caller time to reach the in-flight wait.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, outcomes := range results {
		require.NoError(t, outcomes[kpi.LinkedIn].Err)
		require.Equal(t, int64(321), outcomes[kpi.LinkedIn].Result.Followers)
	}
	require.Equal(t, int64(1), engine.calls.Load())
}

func TestAttemptTimeoutSurfaces(t *testing.T) {
	engine := &fakeEngine{tier: kpi.TierSimulate}
	engine.fn = func(ctx context.Context, _ kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	svc := newTestService(t, engine)
	svc.cfg.AttemptTimeout = 20 * time.Millisecond

	outcomes := svc.ExtractBatch(context.Background(), []kpi.ExtractionRequest{
		{Platform: kpi.Website, ProfileURL: "https://example.com"},
	})

	require.Error(t, outcomes[kpi.Website].Err)
	require.Equal(t, kpi.KindTimeout, kpi.KindOf(outcomes[kpi.Website].Err))
}

func TestHandleExtract(t *testing.T) {
	svc := newTestService(t, &fakeEngine{tier: kpi.TierScrape, fn: succeeding(kpi.TierScrape, 1234)})
	router := NewRouter(svc)

	body := `{"instagram": "https://instagram.com/example"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
	require.Contains(t, rec.Body.String(), `"followers":1234`)
	require.Contains(t, rec.Body.String(), `"tierUsed":"SCRAPE"`)
}

func TestHandleExtractRejectsUnknownPlatform(t *testing.T) {
	svc := newTestService(t, &fakeEngine{tier: kpi.TierAPI, fn: succeeding(kpi.TierAPI, 1)})
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"myspace":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExtractPlatform(t *testing.T) {
	svc := newTestService(t, &fakeEngine{tier: kpi.TierScrape, fn: succeeding(kpi.TierScrape, 1234)})
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract/instagram",
		strings.NewReader(`{"url": "https://instagram.com/example"}`)))

	// The single-platform route returns the metrics object bare.
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"followers":1234`)
	require.NotContains(t, rec.Body.String(), `"success"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract/myspace",
		strings.NewReader(`{"url": "https://myspace.com/example"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract/instagram",
		strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no profile URL provided")
}

func TestHandleExtractPlatform_FailureReportsErrorKind(t *testing.T) {
	svc := newTestService(t,
		&fakeEngine{tier: kpi.TierAPI, fn: failing(kpi.KindUnavailable)},
		&fakeEngine{tier: kpi.TierScrape, fn: failing(kpi.KindParseError)},
		&fakeEngine{tier: kpi.TierSimulate, fn: failing(kpi.KindParseError)},
	)
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract/twitter",
		strings.NewReader(`{"url": "https://twitter.com/example"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), string(kpi.KindParseError))
}

func TestHandleHealth(t *testing.T) {
	svc := newTestService(t, &fakeEngine{tier: kpi.TierAPI, fn: succeeding(kpi.TierAPI, 1)})
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
