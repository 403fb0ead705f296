// Package integrity gates decisions after the computer. It has veto power:
// a failing decision is blocked, never repaired.
package integrity

import (
	"context"
	"math"
	"strings"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// Failure codes, in check order
const (
	FailMissingSelectionID   = "MISSING_SELECTION_ID"
	FailMissingSnapshotHash  = "MISSING_SNAPSHOT_HASH"
	FailMissingProbabilities = "MISSING_PROBABILITIES"
	FailMissingDebug         = "MISSING_DEBUG"
	FailHashMismatch         = "INPUTS_HASH_MISMATCH"
	FailPickSelectionDrift   = "PICK_SELECTION_MISMATCH"
	FailPickLineDrift        = "PICK_LINE_MISMATCH"
	FailProbNotNormalized    = "PROBABILITY_NOT_NORMALIZED"
	FailClassIncoherent      = "CLASSIFICATION_EDGE_MISMATCH"
	FailForbiddenPhrase      = "FORBIDDEN_PHRASE"
)

const probTolerance = 1e-6

// Validator runs the ordered integrity checks over a decision triple
type Validator struct {
	leagues *config.Leagues
	alerts  *store.AlertStore
	metrics *metrics.Registry
	phrases []string
}

// NewValidator creates the validator. The forbidden phrase list defaults to
// the configured set.
func NewValidator(leagues *config.Leagues, alerts *store.AlertStore, reg *metrics.Registry) *Validator {
	return &Validator{
		leagues: leagues,
		alerts:  alerts,
		metrics: reg,
		phrases: config.ForbiddenPhrases,
	}
}

// ValidateGame gates all three decisions of a triple in place. Failures set
// BLOCKED_BY_INTEGRITY with ordered failure codes, null the pick and edge,
// and emit an INTEGRITY_VIOLATION ops alert. Check 6 (simulation
// convergence) downgrades to MARKET_ALIGNED instead of blocking, per the
// decision contract.
func (v *Validator) ValidateGame(ctx context.Context, event *models.Event, gd *models.GameDecisions, converged bool) {
	children := gd.Children()

	// Check 2 needs the full triple
	hashMismatch := false
	for _, d := range children {
		if d.Debug.InputsHash != gd.Meta.InputsHash {
			hashMismatch = true
			break
		}
	}

	for _, d := range children {
		failures := v.checkDecision(event, d, hashMismatch)
		if len(failures) > 0 {
			v.block(ctx, d, failures)
			continue
		}
		v.applyConvergenceDowngrade(d, converged)
	}
}

// checkDecision runs the ordered checks for one decision and returns the
// failure codes
func (v *Validator) checkDecision(event *models.Event, d *models.MarketDecision, hashMismatch bool) []string {
	var failures []string

	// 1. Required fields
	if d.SelectionID == "" || d.OppositeSelectionID == "" {
		failures = append(failures, FailMissingSelectionID)
		if v.metrics != nil {
			v.metrics.MissingSelectionID.Inc()
		}
	}
	if d.Debug.InputsHash == "" {
		failures = append(failures, FailMissingSnapshotHash)
		if v.metrics != nil {
			v.metrics.MissingSnapshotHash.Inc()
		}
	}
	if !d.ReleaseStatus.Blocked() && d.Pick != nil {
		if d.ModelProb <= 0 || d.ModelProb >= 1 || d.MarketImpliedProb <= 0 || d.MarketImpliedProb >= 1 {
			failures = append(failures, FailMissingProbabilities)
		}
	}
	if d.Debug.SimRunID == "" || d.Debug.TraceID == "" || d.Debug.ComputedAt.IsZero() {
		failures = append(failures, FailMissingDebug)
	}

	// 2. Hash identical across the triple
	if hashMismatch {
		failures = append(failures, FailHashMismatch)
	}

	// 3. Pick agrees with the selection id it claims (spread/ML)
	if d.Pick != nil && (d.MarketType == models.MarketSpread || d.MarketType == models.MarketMoneyline) {
		if code := v.checkPickSelection(event, d); code != "" {
			failures = append(failures, code)
		}
	}

	// 4. Probabilities normalized
	if d.Pick != nil {
		if math.Abs(d.ModelProb+d.ModelProbOpposite-1.0) > probTolerance {
			failures = append(failures, FailProbNotNormalized)
		}
	}

	// 5. Classification coherent with edge
	if code := v.checkClassification(d); code != "" {
		failures = append(failures, code)
	}

	// 7. Forbidden phrases on non-official releases
	if d.Classification == models.ClassMarketAligned || d.ReleaseStatus.Blocked() {
		for _, reason := range d.Reasons {
			if v.containsForbidden(reason) {
				failures = append(failures, FailForbiddenPhrase)
				break
			}
		}
	}

	return failures
}

// checkPickSelection recomputes the selection id from the pick and compares
// it with the stored id
func (v *Validator) checkPickSelection(event *models.Event, d *models.MarketDecision) string {
	if d.SelectionID == "" {
		// Already failed the required-field check; nothing to compare
		return ""
	}

	var wantTeamID string
	switch d.Pick.Side {
	case models.SideHome:
		wantTeamID = event.HomeTeamID
	case models.SideAway:
		wantTeamID = event.AwayTeamID
	default:
		return FailPickSelectionDrift
	}
	if d.Pick.TeamID != wantTeamID {
		return FailPickSelectionDrift
	}

	expected := decision.SelectionID(d.EventID, d.MarketType, d.Pick.Side, d.Pick.Line, d.BookID)
	if expected != d.SelectionID {
		return FailPickSelectionDrift
	}

	if d.MarketType == models.MarketSpread && math.Abs(d.Pick.Line-d.Line) > 1e-9 {
		return FailPickLineDrift
	}
	return ""
}

// checkClassification verifies the classification matches the edge sign and
// magnitude, and that aligned decisions carry no misprice language
func (v *Validator) checkClassification(d *models.MarketDecision) string {
	if d.Edge == nil {
		if d.Classification == models.ClassEdge || d.Classification == models.ClassLean {
			return FailClassIncoherent
		}
		return ""
	}

	cfg, err := v.leagues.Get(d.League)
	if err != nil {
		return FailClassIncoherent
	}

	var magnitude, threshold, aligned float64
	switch {
	case d.Edge.Points != nil:
		magnitude = math.Abs(*d.Edge.Points)
		threshold = cfg.EdgeThresholdPoints
		aligned = 0.5
	case d.Edge.EV != nil:
		magnitude = math.Abs(*d.Edge.EV)
		threshold = cfg.MLEdgeThreshold
		aligned = 0.01
	default:
		return FailClassIncoherent
	}

	switch d.Classification {
	case models.ClassMarketAligned:
		if magnitude >= threshold {
			return FailClassIncoherent
		}
		for _, reason := range d.Reasons {
			if strings.Contains(strings.ToLower(reason), "misprice") {
				return FailClassIncoherent
			}
		}
	case models.ClassLean:
		if magnitude < aligned || magnitude >= threshold {
			return FailClassIncoherent
		}
	case models.ClassEdge:
		if magnitude < threshold {
			return FailClassIncoherent
		}
	}
	return ""
}

func (v *Validator) applyConvergenceDowngrade(d *models.MarketDecision, converged bool) {
	if converged {
		return
	}
	if d.Classification == models.ClassEdge || d.Classification == models.ClassLean {
		d.Classification = models.ClassMarketAligned
		d.ReleaseStatus = models.ReleaseInfoOnly
		d.Reasons = append(d.Reasons, "simulation did not converge; downgraded to market aligned")
	}
}

// block sets the blocked state on a decision and records the violation
func (v *Validator) block(ctx context.Context, d *models.MarketDecision, failures []string) {
	d.ReleaseStatus = models.ReleaseBlockedByIntegrity
	d.ValidatorFailures = failures
	d.Pick = nil
	d.Edge = nil

	if v.metrics != nil {
		v.metrics.IntegrityViolations.Inc()
	}
	if v.alerts != nil {
		_, _ = v.alerts.Emit(ctx, store.CallerIntegrityValidator, &models.OpsAlert{
			Kind:     models.AlertIntegrityViolation,
			Severity: models.SeverityCritical,
			EventID:  d.EventID,
			Details: map[string]string{
				"market_type": string(d.MarketType),
				"failures":    strings.Join(failures, ","),
			},
		})
	}
}

func (v *Validator) containsForbidden(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range v.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
