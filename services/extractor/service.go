// Package extractor coordinates KPI extraction across the three tier
// engines: it fans a batch out to one task per platform, consults the
// result cache, drives the tier escalation sequence for misses, and
// aggregates everything into one per-platform response map.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/resultcache"
	"socialkpi-backend/lib/retrypolicy"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// TierEngine is the contract every extraction tier implements. Engines
// are tried in ascending tier order; the orchestrator never inspects
// which concrete engine it is driving.
type TierEngine interface {
	Tier() kpi.Tier
	Attempt(ctx context.Context, req kpi.ExtractionRequest, id *identity.Identity) (*kpi.ExtractionResult, error)
}

// Outcome is one platform's terminal state in a batch: a result or the
// error that ended its escalation. Exactly one field is set.
type Outcome struct {
	Result *kpi.ExtractionResult
	Err    error
}

type platformGate struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
}

type Service struct {
	cfg        Config
	engines    []TierEngine
	identities *identity.Manager
	cache      *resultcache.Cache
	policy     *retrypolicy.Policy
	log        *slog.Logger

	// gates is resolved once at construction, keyed by platform.
	gates map[kpi.Platform]*platformGate
}

func NewService(
	cfg Config,
	engines []TierEngine,
	identities *identity.Manager,
	cache *resultcache.Cache,
	log *slog.Logger,
) *Service {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}

	gates := make(map[kpi.Platform]*platformGate, len(kpi.Platforms()))
	for _, platform := range kpi.Platforms() {
		gates[platform] = &platformGate{
			limiter: rate.NewLimiter(rate.Limit(cfg.PlatformRPS), 1),
			slots:   semaphore.NewWeighted(int64(cfg.PlatformConcurrent)),
		}
	}

	return &Service{
		cfg:        cfg,
		engines:    engines,
		identities: identities,
		cache:      cache,
		policy:     retrypolicy.New(cfg.Retry),
		log:        log,
		gates:      gates,
	}
}

// ExtractBatch runs one extraction task per request concurrently and
// returns a map with exactly one entry per requested platform. A
// platform's failure never disturbs its siblings.
func (s *Service) ExtractBatch(ctx context.Context, reqs []kpi.ExtractionRequest) map[kpi.Platform]Outcome {
	ctx, span := tracer.Start(ctx, "extractor.ExtractBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(reqs)))

	var mu sync.Mutex
	outcomes := make(map[kpi.Platform]Outcome, len(reqs))

	group := errgroup.Group{}
	group.SetLimit(s.cfg.MaxConcurrent)
	for _, req := range reqs {
		req := req
		group.Go(func() error {
			result, err := s.extractOne(ctx, req)
			mu.Lock()
			outcomes[req.Platform] = Outcome{Result: result, Err: err}
			mu.Unlock()
			return nil
		})
	}
	// Tasks always return nil; failures live in the outcome map.
	_ = group.Wait()

	return outcomes
}

// extractOne handles one (platform, profile) task: platform gate, cache
// check, then a deduplicated escalation for misses.
func (s *Service) extractOne(ctx context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "extractor.extractOne")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(req.Platform)),
		attribute.String("url", req.ProfileURL),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	gate, ok := s.gates[req.Platform]
	if !ok {
		return nil, kpi.Errorf(kpi.KindUnavailable, req.Platform, "unknown platform")
	}
	if err := gate.limiter.Wait(ctx); err != nil {
		return nil, kpi.NewError(kpi.KindTimeout, req.Platform, err)
	}
	if err := gate.slots.Acquire(ctx, 1); err != nil {
		return nil, kpi.NewError(kpi.KindTimeout, req.Platform, err)
	}
	defer gate.slots.Release(1)

	cached, err := s.cache.Get(ctx, req.Platform, req.ProfileURL)
	if err == nil {
		span.AddEvent("cache hit")
		return cached, nil
	}
	if !errors.Is(err, resultcache.ErrMiss) {
		s.log.WarnContext(ctx, "cache read failed", "platform", req.Platform, "err", err)
	}

	result, err := s.cache.Do(req.Platform, req.ProfileURL, func() (*kpi.ExtractionResult, error) {
		// A concurrent holder of the same key may have just written.
		if cached, err := s.cache.Get(ctx, req.Platform, req.ProfileURL); err == nil {
			return cached, nil
		}

		result, err := s.escalate(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(ctx, *result, req.ProfileURL); err != nil {
			s.log.WarnContext(ctx, "cache write failed", "platform", req.Platform, "err", err)
		}
		return result, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return nil, err
	}
	return result, nil
}
