// Package audit is the sole writer of the append-only audit log.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// Service records engine milestones for later review. Audit failures are
// logged, never propagated: the audit trail must not block the pipeline.
type Service struct {
	audits *store.AuditStore
}

// NewService creates the audit service
func NewService(audits *store.AuditStore) *Service {
	return &Service{audits: audits}
}

func (s *Service) append(ctx context.Context, action, actor, eventID, subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Audit] marshal %s payload: %v", action, err)
		return
	}

	err = s.audits.Append(ctx, store.CallerAuditService, &store.AuditEntry{
		Action:  action,
		Actor:   actor,
		EventID: eventID,
		Subject: subject,
		Payload: data,
	})
	if err != nil {
		log.Printf("[Audit] append %s: %v", action, err)
	}
}

// RecordGrading logs one grading record
func (s *Service) RecordGrading(ctx context.Context, rec *models.GradingRecord) {
	s.append(ctx, "grading_recorded", "settlement_engine", rec.EventID, rec.PickID, rec)
}

// RecordPublish logs one outbound publish
func (s *Service) RecordPublish(ctx context.Context, signalID, eventID, messageID string) {
	s.append(ctx, "signal_published", "publisher", eventID, signalID, map[string]string{
		"telegram_message_id": messageID,
	})
}

// RecordSignalTransition logs one state machine transition
func (s *Service) RecordSignalTransition(ctx context.Context, sig *models.Signal, from models.SignalStatus) {
	s.append(ctx, "signal_transition", "signal_machine", sig.EventID, sig.SignalID, map[string]string{
		"from": string(from),
		"to":   string(sig.Status),
	})
}

// RecordParlayAttempt logs one parlay construction outcome
func (s *Service) RecordParlayAttempt(ctx context.Context, result *models.ParlayResult) {
	s.append(ctx, "parlay_attempt", "parlay_constructor", "", result.AttemptID, result)
}

// RecordRollback logs a sentinel-triggered rollback
func (s *Service) RecordRollback(ctx context.Context, detail map[string]string) {
	s.append(ctx, "sentinel_rollback", "integrity_sentinel", "", "", detail)
}
