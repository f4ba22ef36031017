// Package anomaly classifies freshly-persisted spans against their cost and
// latency baselines, emits deduplicated alerts, and drives the alert status
// state machine (§4.4).
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracecore/tracecore/internal/dedup"
	alertdomain "github.com/tracecore/tracecore/internal/domain/alert"
	baselinedomain "github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/scoring"
	"github.com/tracecore/tracecore/internal/storage"
)

// BaselineReader is the subset of the baseline engine the classifier needs.
type BaselineReader interface {
	Get(ctx context.Context, key baselinedomain.Key) (*baselinedomain.CostBaseline, error)
}

// Engine evaluates anomalies for each persisted span and manages alert
// deduplication/emission.
type Engine struct {
	baselines  BaselineReader
	alerts     storage.AlertStore
	dedupCache dedup.Cache
	scorer     scoring.Scorer
	logger     *logging.Logger
}

// NewEngine builds an anomaly Engine. logger defaults to logging.NewDefault
// if nil.
func NewEngine(baselines BaselineReader, alerts storage.AlertStore, dedupCache dedup.Cache, scorer scoring.Scorer, logger *logging.Logger) *Engine {
	if scorer == nil {
		scorer = scoring.Default
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Engine{baselines: baselines, alerts: alerts, dedupCache: dedupCache, scorer: scorer, logger: logger}
}

// Evaluate runs the §4.4 classification rules against s, emitting at most
// one new alert (subject to dedup) and returning it, or nil if no rule
// fired or the alert was suppressed as a duplicate.
func (e *Engine) Evaluate(ctx context.Context, s *span.Span, now time.Time) (*alertdomain.Alert, error) {
	key := baselinedomain.Key{ServiceName: s.ServiceName, Endpoint: s.Endpoint, WindowSize: baselinedomain.PrimaryWindow}
	b, err := e.baselines.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	if b == nil || b.SampleCount == 0 {
		// No baseline yet: skip (§4.4).
		return nil, nil
	}

	scoreResult, _ := e.scorer.Score(ctx, s)

	costSpike := b.P95Cost > 0 && s.CostUSD > 2*b.P95Cost
	latencySpike := b.P95Latency > 0 && s.LatencyMs > 2*b.P95Latency

	qualityDrop := false
	var semanticScore, hashSimilarity *float64
	scoringMethod := alertdomain.ScoringHashOnly
	if scoreResult != nil {
		v1, v2 := scoreResult.SemanticScore, scoreResult.HashSimilarity
		semanticScore, hashSimilarity = &v1, &v2
		scoringMethod = alertdomain.ScoringSemantic
		if v1 < 0.5 || v2 < 0.3 {
			qualityDrop = true
		}
	} else if s.HashSimilarity != nil {
		hashSimilarity = s.HashSimilarity
		if *s.HashSimilarity < 0.3 {
			qualityDrop = true
		}
	}
	if scoreResult != nil && s.HashSimilarity != nil {
		scoringMethod = alertdomain.ScoringBoth
	}

	var alertType alertdomain.Type
	switch {
	case costSpike && qualityDrop:
		alertType = alertdomain.TypeCostAndQuality
	case costSpike:
		alertType = alertdomain.TypeCostSpike
	case latencySpike:
		alertType = alertdomain.TypeLatencySpike
	case qualityDrop:
		alertType = alertdomain.TypeQualityDrop
	default:
		return nil, nil
	}

	severity := classifySeverity(alertType, s.CostUSD, b.P95Cost, hashSimilarity)

	var increasePercent *float64
	if b.P95Cost > 0 {
		v := ((s.CostUSD - b.P95Cost) / b.P95Cost) * 100
		increasePercent = &v
	}

	candidate := &alertdomain.Alert{
		AlertID:             uuid.NewString(),
		TraceID:             s.TraceID,
		SpanID:              s.SpanID,
		CustomerID:          s.CustomerID,
		ServiceName:         s.ServiceName,
		Endpoint:            s.Endpoint,
		AlertType:           alertType,
		Severity:            severity,
		CurrentCost:         floatPtr(s.CostUSD),
		BaselineCost:        floatPtr(b.P95Cost),
		CostIncreasePercent: increasePercent,
		HashSimilarity:      hashSimilarity,
		SemanticScore:       semanticScore,
		ScoringMethod:       scoringMethod,
		Reasoning:           reasoning(alertType, s, b),
		Status:              alertdomain.StatusPending,
		CreatedAt:           now,
	}

	return e.emit(ctx, candidate, now)
}

// emit applies the dedup check described in §4.4/§5, inserting a new alert
// on a clean miss or incrementing the existing alert's duplicate counter.
func (e *Engine) emit(ctx context.Context, candidate *alertdomain.Alert, now time.Time) (*alertdomain.Alert, error) {
	scope := dedup.Scope(candidate.CustomerID, candidate.ServiceName, candidate.Endpoint, string(candidate.AlertType))

	if existingID, found, err := e.dedupCache.Get(ctx, scope); err == nil && found {
		if err := e.alerts.IncrementDuplicate(ctx, existingID); err != nil {
			e.logger.LogDegraded("alert_increment_duplicate_failed", logrus.Fields{"alert_id": existingID, "error": err})
		}
		return nil, nil
	}

	existing, err := e.alerts.FindRecentOpen(ctx, candidate.CustomerID, candidate.ServiceName, candidate.Endpoint, candidate.AlertType, alertdomain.DedupWindow, now)
	if err != nil {
		return nil, fmt.Errorf("find recent alert: %w", err)
	}
	if existing != nil {
		if err := e.alerts.IncrementDuplicate(ctx, existing.AlertID); err != nil {
			e.logger.LogDegraded("alert_increment_duplicate_failed", logrus.Fields{"alert_id": existing.AlertID, "error": err})
		}
		if err := e.dedupCache.Set(ctx, scope, existing.AlertID, alertdomain.DedupWindow); err != nil {
			e.logger.LogDegraded("dedup_cache_set_failed", logrus.Fields{"scope": scope, "error": err})
		}
		return nil, nil
	}

	if err := e.alerts.Insert(ctx, candidate); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	if err := e.dedupCache.Set(ctx, scope, candidate.AlertID, alertdomain.DedupWindow); err != nil {
		e.logger.LogDegraded("dedup_cache_set_failed", logrus.Fields{"scope": scope, "error": err})
	}
	return candidate, nil
}

func classifySeverity(alertType alertdomain.Type, cost, baselineP95 float64, hashSimilarity *float64) alertdomain.Severity {
	if alertType == alertdomain.TypeQualityDrop && hashSimilarity != nil {
		switch {
		case *hashSimilarity >= 0.8:
			return alertdomain.SeverityLow
		case *hashSimilarity < 0.5:
			return alertdomain.SeverityHigh
		default:
			return alertdomain.SeverityMedium
		}
	}

	if baselineP95 <= 0 {
		return alertdomain.SeverityLow
	}
	ratio := cost / baselineP95
	switch {
	case ratio <= 3:
		return alertdomain.SeverityLow
	case ratio <= 5:
		return alertdomain.SeverityMedium
	default:
		return alertdomain.SeverityHigh
	}
}

func reasoning(alertType alertdomain.Type, s *span.Span, b *baselinedomain.CostBaseline) string {
	switch alertType {
	case alertdomain.TypeCostSpike, alertdomain.TypeCostAndQuality:
		return fmt.Sprintf("cost %.6f exceeds 2x the p95 baseline of %.6f for %s%s", s.CostUSD, b.P95Cost, s.ServiceName, s.Endpoint)
	case alertdomain.TypeLatencySpike:
		return fmt.Sprintf("latency %.0fms exceeds 2x the p95 baseline of %.0fms for %s%s", s.LatencyMs, b.P95Latency, s.ServiceName, s.Endpoint)
	case alertdomain.TypeQualityDrop:
		return fmt.Sprintf("response diverges from the modal response for %s%s", s.ServiceName, s.Endpoint)
	default:
		return "anomaly detected"
	}
}

func floatPtr(v float64) *float64 { return &v }

// ExpireStale force-resolves alerts still open past alertdomain.AutoExpire,
// the state machine's auto-expire edge (§4.4).
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	return e.alerts.ExpireStale(ctx, now.Add(-alertdomain.AutoExpire), now)
}

// Transition performs a validated state-machine move, returning an error
// the caller maps to 409 on invalid transitions (§7).
func (e *Engine) Transition(ctx context.Context, alertID string, next alertdomain.Status, now time.Time) (*alertdomain.Alert, error) {
	existing, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !existing.Status.CanTransition(next) {
		return nil, &InvalidTransitionError{From: existing.Status, To: next}
	}
	if err := e.alerts.UpdateStatus(ctx, alertID, next, now); err != nil {
		return nil, fmt.Errorf("update alert status: %w", err)
	}
	existing.Status = next
	return existing, nil
}

// InvalidTransitionError reports an illegal alert state-machine move.
type InvalidTransitionError struct {
	From alertdomain.Status
	To   alertdomain.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition alert from %s to %s", e.From, e.To)
}
