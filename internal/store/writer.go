package store

import (
	"context"
	"fmt"

	"github.com/XavierBriggs/pythia/internal/metrics"
)

// Caller names a module that performs writes. Every store write names its
// caller; the guard refuses writes from modules not on the collection's
// allowlist.
type Caller string

const (
	CallerOrchestrator       Caller = "orchestrator"
	CallerSimEngine          Caller = "sim_engine"
	CallerDecisionComputer   Caller = "decision_computer"
	CallerIntegrityValidator Caller = "integrity_validator"
	CallerSignalMachine      Caller = "signal_machine"
	CallerSettlementEngine   Caller = "settlement_engine"
	CallerPublisher          Caller = "publisher"
	CallerParlayConstructor  Caller = "parlay_constructor"
	CallerSentinel           Caller = "integrity_sentinel"
	CallerAuditService       Caller = "audit_service"
	CallerAdminBackfill      Caller = "admin_backfill"
)

// Collection names a protected collection
type Collection string

const (
	ColEvents        Collection = "events"
	ColSnapshots     Collection = "market_snapshots"
	ColSimRuns       Collection = "sim_runs"
	ColDecisions     Collection = "decisions"
	ColSignals       Collection = "signals"
	ColGrading       Collection = "grading"
	ColOpsAlerts     Collection = "ops_alerts"
	ColAuditLog      Collection = "audit_log"
	ColParlayAttempt Collection = "parlay_attempts"
	ColFeatureFlags  Collection = "feature_flags"
	ColPublishLog    Collection = "publish_log"
	ColCalibration   Collection = "calibration_snapshots"
)

// writerMatrix is the per-collection allowlist. It is the single source of
// truth for write authorization and is verified by a greppable test.
var writerMatrix = map[Collection][]Caller{
	ColEvents:        {CallerOrchestrator, CallerSettlementEngine, CallerAdminBackfill},
	ColSnapshots:     {CallerOrchestrator, CallerSignalMachine},
	ColSimRuns:       {CallerSimEngine},
	ColDecisions:     {CallerDecisionComputer},
	ColSignals:       {CallerSignalMachine, CallerPublisher, CallerSettlementEngine},
	ColGrading:       {CallerSettlementEngine},
	ColOpsAlerts:     {CallerSentinel, CallerIntegrityValidator, CallerSettlementEngine, CallerPublisher, CallerOrchestrator},
	ColAuditLog:      {CallerAuditService},
	ColParlayAttempt: {CallerParlayConstructor},
	ColFeatureFlags:  {CallerSentinel, CallerAdminBackfill},
	ColPublishLog:    {CallerPublisher},
	ColCalibration:   {CallerOrchestrator},
}

// ErrWriterUnauthorized is returned when a module writes to a collection it
// is not listed for. It indicates a programming defect, not a runtime
// condition to retry.
type ErrWriterUnauthorized struct {
	Caller     Caller
	Collection Collection
}

func (e *ErrWriterUnauthorized) Error() string {
	return fmt.Sprintf("writer matrix: %s may not write %s", e.Caller, e.Collection)
}

// AlertSink receives the WRITER_UNAUTHORIZED alert a refused write produces
type AlertSink interface {
	EmitGuardAlert(ctx context.Context, caller Caller, collection Collection)
}

// Guard enforces the writer matrix at runtime
type Guard struct {
	metrics *metrics.Registry
	alerts  AlertSink
}

// NewGuard creates the guard. The alert sink may be nil during wiring and
// attached later with SetAlertSink.
func NewGuard(reg *metrics.Registry) *Guard {
	return &Guard{metrics: reg}
}

// SetAlertSink attaches the ops-alert sink used to record refused writes
func (g *Guard) SetAlertSink(sink AlertSink) {
	g.alerts = sink
}

// Authorize checks that caller may write collection. On refusal it records
// the violation and returns ErrWriterUnauthorized.
func (g *Guard) Authorize(ctx context.Context, caller Caller, collection Collection) error {
	allowed, ok := writerMatrix[collection]
	if ok {
		for _, c := range allowed {
			if c == caller {
				return nil
			}
		}
	}

	if g.metrics != nil {
		g.metrics.WriterUnauthorized.Inc()
	}
	if g.alerts != nil {
		g.alerts.EmitGuardAlert(ctx, caller, collection)
	}

	return &ErrWriterUnauthorized{Caller: caller, Collection: collection}
}

// Allowlist returns a copy of the writers for a collection (test support)
func Allowlist(collection Collection) []Caller {
	out := make([]Caller, len(writerMatrix[collection]))
	copy(out, writerMatrix[collection])
	return out
}
