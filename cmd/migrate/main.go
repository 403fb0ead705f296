// migrate applies the database schema to Alexandria and Holocron.
// Exit codes: 0 success, 4 migration failure, 5 database unavailable.
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/XavierBriggs/pythia/internal/config"
)

const alexandriaSchema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	league TEXT NOT NULL,
	home_team_id TEXT NOT NULL,
	away_team_id TEXT NOT NULL,
	home_team_name TEXT NOT NULL,
	away_team_name TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	provider_oddsapi_event_id TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_events_provider
	ON events (provider_oddsapi_event_id)
	WHERE provider_oddsapi_event_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_time, completed);

CREATE TABLE IF NOT EXISTS market_snapshots (
	event_id TEXT NOT NULL,
	wave TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	book_id TEXT NOT NULL,
	spread_home DOUBLE PRECISION NOT NULL,
	spread_away DOUBLE PRECISION NOT NULL,
	spread_home_price INTEGER NOT NULL,
	spread_away_price INTEGER NOT NULL,
	total DOUBLE PRECISION NOT NULL,
	over_price INTEGER NOT NULL,
	under_price INTEGER NOT NULL,
	ml_home INTEGER NOT NULL,
	ml_away INTEGER NOT NULL,
	PRIMARY KEY (event_id, observed_at)
);

CREATE TABLE IF NOT EXISTS sim_runs (
	sim_run_id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	league TEXT NOT NULL,
	wave TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	seed BIGINT NOT NULL,
	config JSONB NOT NULL,
	home_win_prob DOUBLE PRECISION NOT NULL,
	mean_margin DOUBLE PRECISION NOT NULL,
	margin_variance DOUBLE PRECISION NOT NULL,
	mean_total DOUBLE PRECISION NOT NULL,
	total_variance DOUBLE PRECISION NOT NULL,
	margin_hist JSONB NOT NULL,
	total_hist JSONB NOT NULL,
	converged BOOLEAN NOT NULL,
	timed_out BOOLEAN NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sim_runs_event ON sim_runs (event_id, wave);

CREATE TABLE IF NOT EXISTS decisions (
	event_id TEXT NOT NULL,
	market_type TEXT NOT NULL,
	decision_version BIGINT NOT NULL,
	inputs_hash TEXT NOT NULL,
	payload JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, market_type)
);
`

const holocronSchema = `
CREATE TABLE IF NOT EXISTS signals (
	signal_id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	sport TEXT NOT NULL,
	team_a TEXT NOT NULL,
	team_b TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	intent TEXT NOT NULL,
	market_type TEXT NOT NULL,
	status TEXT NOT NULL,
	waves JSONB NOT NULL,
	entry JSONB,
	pick_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (event_id, market_type)
);

CREATE INDEX IF NOT EXISTS idx_signals_status_start ON signals (status, start_time);
CREATE INDEX IF NOT EXISTS idx_signals_pick ON signals (pick_id) WHERE pick_id != '';

CREATE TABLE IF NOT EXISTS grading (
	pick_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	settlement TEXT NOT NULL,
	clv DOUBLE PRECISION,
	score_payload_ref JSONB NOT NULL,
	ops_alerts JSONB NOT NULL,
	admin_override TEXT,
	admin_note TEXT NOT NULL DEFAULT '',
	rules_version TEXT NOT NULL,
	clv_rules_version TEXT NOT NULL,
	graded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grading_pick ON grading (pick_id);
CREATE INDEX IF NOT EXISTS idx_grading_graded_at ON grading (graded_at);

CREATE TABLE IF NOT EXISTS ops_alerts (
	alert_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	event_id TEXT NOT NULL DEFAULT '',
	details JSONB NOT NULL,
	reconciliation_status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ops_alerts_event_kind ON ops_alerts (event_id, kind, reconciliation_status);

CREATE TABLE IF NOT EXISTS audit_log (
	entry_id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	actor TEXT NOT NULL,
	event_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS parlay_attempts (
	attempt_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	reason_code TEXT NOT NULL DEFAULT '',
	request JSONB NOT NULL,
	result JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parlay_attempts_created ON parlay_attempts (created_at);

CREATE TABLE IF NOT EXISTS feature_flags (
	name TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS publish_log (
	signal_id TEXT NOT NULL,
	template_id TEXT NOT NULL,
	rendered_hash TEXT NOT NULL,
	rendered_text TEXT NOT NULL,
	posted BOOLEAN NOT NULL,
	telegram_message_id TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (signal_id, template_id, rendered_hash)
);

CREATE TABLE IF NOT EXISTS calibration_snapshots (
	snapshot_date TIMESTAMPTZ NOT NULL,
	league TEXT NOT NULL,
	graded INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	pushes INTEGER NOT NULL,
	voids INTEGER NOT NULL,
	mean_clv DOUBLE PRECISION,
	edge_buckets JSONB NOT NULL,
	PRIMARY KEY (snapshot_date, league)
);
`

func main() {
	fmt.Println("=== Pythia Schema Migration ===")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := migrate("Alexandria", cfg.AlexandriaDSN, alexandriaSchema); err != nil {
		os.Exit(exitCode(err))
	}
	if err := migrate("Holocron", cfg.HolocronDSN, holocronSchema); err != nil {
		os.Exit(exitCode(err))
	}

	fmt.Println("✓ Migration complete")
}

type migrationError struct {
	err error
}

func (e *migrationError) Error() string { return e.err.Error() }

func migrate(name, dsn, schema string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Printf("❌ %s: open failed: %v\n", name, err)
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Printf("❌ %s: unreachable: %v\n", name, err)
		return err
	}

	if _, err := db.Exec(schema); err != nil {
		fmt.Printf("❌ %s: migration failed: %v\n", name, err)
		return &migrationError{err: err}
	}

	fmt.Printf("✓ %s schema applied\n", name)
	return nil
}

func exitCode(err error) int {
	if _, ok := err.(*migrationError); ok {
		return 4
	}
	return 5
}
