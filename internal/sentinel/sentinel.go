// Package sentinel watches violation rates over a rolling window and flips
// the publishing kill switch when they breach.
package sentinel

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/flags"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// Breach thresholds per the monitoring contract
const (
	integrityViolationCritical = 0.005
	missingSelectionCritical   = 0.001
	missingHashCritical        = 0.001
	postValidationCritical     = 0.01
	edgeCollapseDrop           = 0.90
)

// sample is one counter snapshot
type sample struct {
	at                 time.Time
	decisions          int64
	edges              int64
	violations         int64
	missingSelection   int64
	missingHash        int64
	postsAttempted     int64
	postValidationFail int64
}

// Sentinel polls the in-process counters on a fixed cadence
type Sentinel struct {
	metrics  *metrics.Registry
	flags    *flags.Service
	alerts   *store.AlertStore
	notifier *SlackNotifier
	rollback *Rollback
	auditor  *audit.Service

	interval time.Duration
	window   time.Duration
	baseline time.Duration

	samples []sample
}

// New creates the sentinel. Window defaults to 5 minutes over a 60s
// cadence; the edge-collapse baseline looks back 30 minutes.
func New(reg *metrics.Registry, flagSvc *flags.Service, alerts *store.AlertStore, notifier *SlackNotifier, rollback *Rollback, auditor *audit.Service, interval time.Duration) *Sentinel {
	return &Sentinel{
		metrics:  reg,
		flags:    flagSvc,
		alerts:   alerts,
		notifier: notifier,
		rollback: rollback,
		auditor:  auditor,
		interval: interval,
		window:   5 * time.Minute,
		baseline: 30 * time.Minute,
	}
}

// Run polls until the context ends
func (s *Sentinel) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sentinel] started (interval %v, window %v)", s.interval, s.window)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.flags.Enabled(ctx, store.FlagIntegritySentinel) {
				continue
			}
			s.tick(ctx, time.Now())
		}
	}
}

// tick takes one sample and evaluates the thresholds
func (s *Sentinel) tick(ctx context.Context, now time.Time) {
	s.samples = append(s.samples, sample{
		at:                 now,
		decisions:          s.metrics.DecisionsComputed.Value(),
		edges:              s.metrics.EdgesDetected.Value(),
		violations:         s.metrics.IntegrityViolations.Value(),
		missingSelection:   s.metrics.MissingSelectionID.Value(),
		missingHash:        s.metrics.MissingSnapshotHash.Value(),
		postsAttempted:     s.metrics.PostsAttempted.Value(),
		postValidationFail: s.metrics.PostValidationFailed.Value(),
	})
	s.trim(now)

	base := s.sampleBefore(now.Add(-s.window))
	if base == nil {
		return
	}
	cur := s.samples[len(s.samples)-1]

	decisions := cur.decisions - base.decisions
	posts := cur.postsAttempted - base.postsAttempted

	var breaches []string
	if r := rate(cur.violations-base.violations, decisions); r > integrityViolationCritical {
		breaches = append(breaches, fmt.Sprintf("integrity_violation_rate %.3f%%", r*100))
	}
	if r := rate(cur.missingSelection-base.missingSelection, decisions); r > missingSelectionCritical {
		breaches = append(breaches, fmt.Sprintf("missing_selection_id_rate %.3f%%", r*100))
	}
	if r := rate(cur.missingHash-base.missingHash, decisions); r > missingHashCritical {
		breaches = append(breaches, fmt.Sprintf("missing_snapshot_hash_rate %.3f%%", r*100))
	}
	if r := rate(cur.postValidationFail-base.postValidationFail, posts); r > postValidationCritical {
		breaches = append(breaches, fmt.Sprintf("post_validation_fail_rate %.3f%%", r*100))
	}

	if len(breaches) > 0 {
		s.onCritical(ctx, breaches)
	}

	s.checkEdgeCollapse(ctx, now, cur)
}

// checkEdgeCollapse compares the recent edge rate against the 30-minute
// baseline; a >90% drop is a warning, not a kill switch
func (s *Sentinel) checkEdgeCollapse(ctx context.Context, now time.Time, cur sample) {
	baselineSample := s.sampleBefore(now.Add(-s.baseline))
	windowSample := s.sampleBefore(now.Add(-s.window))
	if baselineSample == nil || windowSample == nil {
		return
	}

	baselineRate := rate(windowSample.edges-baselineSample.edges, windowSample.decisions-baselineSample.decisions)
	recentRate := rate(cur.edges-windowSample.edges, cur.decisions-windowSample.decisions)

	if baselineRate <= 0 {
		return
	}
	if recentRate < baselineRate*(1-edgeCollapseDrop) {
		s.emit(ctx, models.SeverityWarning, map[string]string{
			"metric":        "edge_rate_collapse",
			"baseline_rate": fmt.Sprintf("%.4f", baselineRate),
			"recent_rate":   fmt.Sprintf("%.4f", recentRate),
		})
	}
}

// onCritical flips the kill switch, alerts, and optionally rolls back
func (s *Sentinel) onCritical(ctx context.Context, breaches []string) {
	log.Printf("[Sentinel] CRITICAL breach: %v", breaches)

	if err := s.flags.Set(ctx, store.CallerSentinel, store.FlagPublisherAutopublish, false); err != nil {
		log.Printf("[Sentinel] disable autopublish: %v", err)
	}

	details := map[string]string{"breaches": fmt.Sprintf("%v", breaches)}
	s.emit(ctx, models.SeverityCritical, details)

	if s.notifier != nil {
		if err := s.notifier.SendBreach(ctx, breaches); err != nil {
			log.Printf("[Sentinel] slack notify: %v", err)
		}
	}

	if s.rollback != nil && s.flags.Enabled(ctx, store.FlagAutorollback) {
		if err := s.rollback.Execute(ctx, breaches); err != nil {
			log.Printf("[Sentinel] rollback: %v", err)
		} else if s.auditor != nil {
			s.auditor.RecordRollback(ctx, details)
		}
	}
}

func (s *Sentinel) emit(ctx context.Context, severity models.AlertSeverity, details map[string]string) {
	if s.alerts == nil {
		return
	}
	_, err := s.alerts.Emit(ctx, store.CallerSentinel, &models.OpsAlert{
		Kind:     models.AlertSentinelBreach,
		Severity: severity,
		Details:  details,
	})
	if err != nil {
		log.Printf("[Sentinel] emit alert: %v", err)
	}
}

// sampleBefore returns the newest sample at or before the cutoff
func (s *Sentinel) sampleBefore(cutoff time.Time) *sample {
	for i := len(s.samples) - 1; i >= 0; i-- {
		if !s.samples[i].at.After(cutoff) {
			return &s.samples[i]
		}
	}
	return nil
}

// trim drops samples older than the baseline lookback
func (s *Sentinel) trim(now time.Time) {
	cutoff := now.Add(-s.baseline - s.interval)
	keep := s.samples[:0]
	for _, smp := range s.samples {
		if smp.at.After(cutoff) {
			keep = append(keep, smp)
		}
	}
	s.samples = keep
}

func rate(numerator, denominator int64) float64 {
	if denominator <= 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}
