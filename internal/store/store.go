// Package store provides the Postgres persistence layer. Market data
// (events, snapshots, sim runs, decisions) lives in the alexandria database;
// decision-lifecycle state (signals, grading, alerts, audit, parlay
// attempts, feature flags) lives in holocron. Every write goes through the
// writer-matrix guard.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to a Postgres database and verifies the connection
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Stores bundles every collection store over the two databases
type Stores struct {
	Events    *EventStore
	Snapshots *SnapshotStore
	SimRuns   *SimRunStore
	Decisions *DecisionStore
	Signals   *SignalStore
	Grading   *GradingStore
	Alerts    *AlertStore
	Audit     *AuditStore
	Parlay      *ParlayStore
	Flags       *FlagStore
	Publish     *PublishLogStore
	Calibration *CalibrationStore

	Guard *Guard
}

// New wires every store over the two database handles
func New(alexandria, holocron *sql.DB, guard *Guard) *Stores {
	s := &Stores{
		Events:      &EventStore{db: alexandria, guard: guard},
		Snapshots:   &SnapshotStore{db: alexandria, guard: guard},
		SimRuns:     &SimRunStore{db: alexandria, guard: guard},
		Decisions:   &DecisionStore{db: alexandria, guard: guard},
		Signals:     &SignalStore{db: holocron, guard: guard},
		Grading:     &GradingStore{db: holocron, guard: guard},
		Alerts:      &AlertStore{db: holocron, guard: guard},
		Audit:       &AuditStore{db: holocron, guard: guard},
		Parlay:      &ParlayStore{db: holocron, guard: guard},
		Flags:       &FlagStore{db: holocron, guard: guard},
		Publish:     &PublishLogStore{db: holocron, guard: guard},
		Calibration: &CalibrationStore{db: holocron, guard: guard},
		Guard:       guard,
	}
	guard.SetAlertSink(s.Alerts)
	return s
}
