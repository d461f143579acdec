package extractor

import (
	"context"
	"time"

	"socialkpi-backend/lib/identity"
	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/retrypolicy"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// escalate drives the tier sequence for one task. Each tier runs under
// its own retry state; a tier's terminal failure hands off to the next
// tier, and only the last tier's failure surfaces to the caller.
func (s *Service) escalate(ctx context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "extractor.escalate")
	defer span.End()

	var lastErr error
	for _, engine := range s.engines {
		result, err := s.runTier(ctx, engine, req)
		if err == nil {
			span.SetAttributes(attribute.String("tier_used", result.TierUsed.String()))
			return result, nil
		}

		kind := kpi.KindOf(err)
		if kind == kpi.KindTimeout && ctx.Err() != nil {
			// Task deadline is gone; higher tiers cannot help.
			return nil, err
		}
		if kind == kpi.KindUnavailable {
			s.log.DebugContext(ctx, "tier inapplicable, skipping",
				"platform", req.Platform, "tier", engine.Tier().String())
		} else {
			s.log.InfoContext(ctx, "escalating tier",
				"platform", req.Platform, "tier", engine.Tier().String(), "kind", kind)
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = kpi.Errorf(kpi.KindUnavailable, req.Platform, "no extraction tiers configured")
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all tiers exhausted")
	return nil, lastErr
}

// runTier runs one tier's attempt sequence under the retry policy. The
// identity is held for the whole sequence and released with the outcome
// the last attempt earned: OK persists the session, a confirmed block
// retires the fingerprint and penalizes the proxy.
func (s *Service) runTier(ctx context.Context, engine TierEngine, req kpi.ExtractionRequest) (result *kpi.ExtractionResult, err error) {
	tier := engine.Tier()
	ctx, span := tracer.Start(ctx, "extractor.runTier")
	defer span.End()
	span.SetAttributes(attribute.String("tier", tier.String()))

	id, err := s.identities.Acquire(ctx, req.Platform, req.ProfileURL)
	if err != nil {
		return nil, kpi.NewError(kpi.KindUnavailable, req.Platform, err)
	}
	outcome := identity.OutcomeErrored
	defer func() { s.identities.Release(ctx, id, outcome) }()

	state := retrypolicy.State{Tier: tier}
	for {
		result, err = s.attempt(ctx, engine, req, id)
		if err == nil {
			outcome = identity.OutcomeOK
			return result, nil
		}

		state.Attempt++
		state.LastKind = kpi.KindOf(err)
		span.SetAttributes(attribute.Int("attempts", state.Attempt))
		if state.LastKind == kpi.KindCaptchaDetected {
			outcome = identity.OutcomeBlocked
		}

		if !s.policy.ShouldRetry(state) {
			return nil, err
		}

		delay := s.policy.NextDelay(state)
		s.log.DebugContext(ctx, "retrying tier attempt",
			"platform", req.Platform, "tier", tier.String(),
			"attempt", state.Attempt, "delay", delay)
		if werr := sleepCtx(ctx, delay); werr != nil {
			return nil, kpi.NewError(kpi.KindTimeout, req.Platform, werr)
		}
	}
}

func (s *Service) attempt(ctx context.Context, engine TierEngine, req kpi.ExtractionRequest, id *identity.Identity) (*kpi.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()
	return engine.Attempt(ctx, req, id)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
