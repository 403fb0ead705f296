package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Settlement is the graded outcome of a pick
type Settlement string

const (
	SettlementWin  Settlement = "WIN"
	SettlementLoss Settlement = "LOSS"
	SettlementPush Settlement = "PUSH"
	SettlementVoid Settlement = "VOID"
)

// ParseSettlement validates an externally supplied settlement value
func ParseSettlement(s string) (Settlement, error) {
	switch Settlement(s) {
	case SettlementWin, SettlementLoss, SettlementPush, SettlementVoid:
		return Settlement(s), nil
	}
	return "", fmt.Errorf("invalid settlement: %s", s)
}

// SettlementMode scopes which portion of the game a market settles on
type SettlementMode string

const (
	SettleFullGame   SettlementMode = "FULL_GAME"
	SettleRegulation SettlementMode = "REGULATION"
)

// ScorePayloadRef pins the provider score payload a grade was computed from
type ScorePayloadRef struct {
	ProviderEventID string          `json:"provider_event_id"`
	PayloadHash     string          `json:"payload_hash"`
	Snapshot        json.RawMessage `json:"snapshot"`
}

// GradingRecord is the append-only settlement result for one pick.
// Records are unique on IdempotencyKey.
type GradingRecord struct {
	PickID          string          `json:"pick_id"`
	EventID         string          `json:"event_id"`
	ProviderEventID string          `json:"provider_event_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	Settlement      Settlement      `json:"settlement"`
	CLV             *float64        `json:"clv"`
	ScoreRef        ScorePayloadRef `json:"score_payload_ref"`
	OpsAlerts       []string        `json:"ops_alerts"`
	AdminOverride   *Settlement     `json:"admin_override,omitempty"`
	AdminNote       string          `json:"admin_note,omitempty"`
	RulesVersion    string          `json:"settlement_rules_version"`
	CLVRulesVersion string          `json:"clv_rules_version"`
	GradedAt        time.Time       `json:"graded_at"`
}

// GradingIdempotencyKey derives the unique key a grade is stored under.
// Re-grading the same pick from the same source under the same rules
// collapses to one record.
func GradingIdempotencyKey(pickID, gradeSource, rulesVersion, clvRulesVersion string) string {
	sum := sha256.Sum256([]byte(pickID + "|" + gradeSource + "|" + rulesVersion + "|" + clvRulesVersion))
	return hex.EncodeToString(sum[:])
}
