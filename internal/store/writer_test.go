package store

import (
	"context"
	"errors"
	"testing"
)

// TestWriterMatrixAllowlist pins the canonical allowlist entries. The
// matrix is code, not documentation; this test is the greppable statement
// of who may write what.
func TestWriterMatrixAllowlist(t *testing.T) {
	tests := []struct {
		collection Collection
		want       []Caller
	}{
		{ColGrading, []Caller{CallerSettlementEngine}},
		{ColAuditLog, []Caller{CallerAuditService}},
		{ColDecisions, []Caller{CallerDecisionComputer}},
		{ColSimRuns, []Caller{CallerSimEngine}},
		{ColParlayAttempt, []Caller{CallerParlayConstructor}},
		{ColPublishLog, []Caller{CallerPublisher}},
	}

	for _, tt := range tests {
		t.Run(string(tt.collection), func(t *testing.T) {
			got := Allowlist(tt.collection)
			if len(got) != len(tt.want) {
				t.Fatalf("allowlist for %s = %v, want %v", tt.collection, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("allowlist for %s = %v, want %v", tt.collection, got, tt.want)
				}
			}
		})
	}
}

func TestGuardRefusesUnlistedCaller(t *testing.T) {
	guard := NewGuard(nil)
	ctx := context.Background()

	err := guard.Authorize(ctx, CallerPublisher, ColGrading)
	if err == nil {
		t.Fatal("publisher writing grading must be refused")
	}

	var unauthorized *ErrWriterUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("error type = %T, want ErrWriterUnauthorized", err)
	}
	if unauthorized.Caller != CallerPublisher || unauthorized.Collection != ColGrading {
		t.Errorf("error identifies %s/%s, want publisher/grading", unauthorized.Caller, unauthorized.Collection)
	}
}

func TestGuardAllowsListedCaller(t *testing.T) {
	guard := NewGuard(nil)
	ctx := context.Background()

	if err := guard.Authorize(ctx, CallerSettlementEngine, ColGrading); err != nil {
		t.Errorf("settlement engine writing grading must be allowed: %v", err)
	}
	if err := guard.Authorize(ctx, CallerSignalMachine, ColSignals); err != nil {
		t.Errorf("signal machine writing signals must be allowed: %v", err)
	}
	if err := guard.Authorize(ctx, CallerOrchestrator, ColSnapshots); err != nil {
		t.Errorf("orchestrator writing snapshots must be allowed: %v", err)
	}
}

func TestGuardRefusesUnknownCollection(t *testing.T) {
	guard := NewGuard(nil)

	if err := guard.Authorize(context.Background(), CallerOrchestrator, Collection("scratch")); err == nil {
		t.Error("unknown collections have no writers")
	}
}

// TestSettlementFieldsSingleWriter asserts the settlement-outcome rule:
// the grading collection (where outcomes live) has exactly one writer.
func TestSettlementFieldsSingleWriter(t *testing.T) {
	writers := Allowlist(ColGrading)
	if len(writers) != 1 || writers[0] != CallerSettlementEngine {
		t.Errorf("grading writers = %v; settlement outcomes belong to the settlement engine alone", writers)
	}
}
