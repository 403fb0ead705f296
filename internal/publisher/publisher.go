// Package publisher drains the locked-signal queue into the outbound
// channel. Every rendering passes the copy validator before posting; posts
// are at-most-once per rendering and at most one per (event, market) per
// window.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/flags"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// StreamName is the locked-signal queue stream
const StreamName = "signals.locked"

const (
	consumerGroup = "publisher"
	consumerName  = "publisher-1"
)

// Publisher is the single-threaded outbound worker; one worker per channel
// preserves ordering
type Publisher struct {
	redisClient *redis.Client
	stores      *store.Stores
	flags       *flags.Service
	telegram    *TelegramClient
	validator   *CopyValidator
	auditor     *audit.Service
	metrics     *metrics.Registry

	maxAge time.Duration
	window time.Duration
}

// New creates the publisher
func New(redisClient *redis.Client, stores *store.Stores, flagSvc *flags.Service, telegram *TelegramClient, validator *CopyValidator, auditor *audit.Service, reg *metrics.Registry, maxAge, window time.Duration) *Publisher {
	return &Publisher{
		redisClient: redisClient,
		stores:      stores,
		flags:       flagSvc,
		telegram:    telegram,
		validator:   validator,
		auditor:     auditor,
		metrics:     reg,
		maxAge:      maxAge,
		window:      window,
	}
}

// EnqueueLocked pushes a published signal onto the outbound queue
func (p *Publisher) EnqueueLocked(ctx context.Context, sig *models.Signal) error {
	err := p.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]interface{}{
			"signal_id": sig.SignalID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue signal %s: %w", sig.SignalID, err)
	}
	return nil
}

// Run consumes the queue until the context ends
func (p *Publisher) Run(ctx context.Context) error {
	err := p.redisClient.XGroupCreateMkStream(ctx, StreamName, consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}

	log.Println("[Publisher] consumer group ready")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// The sentinel's kill switch: with autopublish off, nothing is read
		// and the backlog waits
		if !p.flags.Enabled(ctx, store.FlagPublisherAutopublish) {
			time.Sleep(5 * time.Second)
			continue
		}

		if err := p.consumeBatch(ctx); err != nil {
			log.Printf("[Publisher] consume error: %v", err)
			time.Sleep(5 * time.Second)
		}
	}
}

type queued struct {
	messageID string
	signal    *models.Signal
	rank      int
}

func (p *Publisher) consumeBatch(ctx context.Context) error {
	streams, err := p.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumerName,
		Streams:  []string{StreamName, ">"},
		Count:    16,
		Block:    5 * time.Second,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("xreadgroup: %w", err)
	}

	var batch []queued
	for _, stream := range streams {
		for _, message := range stream.Messages {
			signalID, ok := message.Values["signal_id"].(string)
			if !ok {
				p.ack(ctx, message.ID)
				continue
			}
			sig, err := p.stores.Signals.Get(ctx, signalID)
			if err != nil {
				log.Printf("[Publisher] load signal %s: %v", signalID, err)
				p.ack(ctx, message.ID)
				continue
			}
			batch = append(batch, queued{messageID: message.ID, signal: sig, rank: priorityRank(sig)})
		}
	}

	// Priority: EDGE-unconstrained, EDGE-constrained, LEAN-unconstrained,
	// LEAN-constrained; oldest first within a tier
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].rank != batch[j].rank {
			return batch[i].rank < batch[j].rank
		}
		return lockedAt(batch[i].signal).Before(lockedAt(batch[j].signal))
	})

	for _, item := range batch {
		if err := p.process(ctx, item.signal); err != nil {
			log.Printf("[Publisher] process %s: %v", item.signal.SignalID, err)
		}
		p.ack(ctx, item.messageID)
	}

	return nil
}

func (p *Publisher) ack(ctx context.Context, messageID string) {
	if err := p.redisClient.XAck(ctx, StreamName, consumerGroup, messageID).Err(); err != nil {
		log.Printf("[Publisher] ack %s: %v", messageID, err)
	}
}

// process renders, validates and posts one signal
func (p *Publisher) process(ctx context.Context, sig *models.Signal) error {
	if p.metrics != nil {
		p.metrics.PostsAttempted.Inc()
	}

	if sig.Entry == nil {
		return fmt.Errorf("signal %s has no frozen entry", sig.SignalID)
	}

	// Freshness: stale entries are dropped with a recorded reason
	if time.Since(sig.Entry.LockedAt) > p.maxAge {
		return p.recordFailure(ctx, sig, "", "", "", "entry older than freshness window")
	}

	// One post per (event, market) per window
	posted, err := p.stores.Publish.PostedWithin(ctx, sig.EventID, string(sig.Market), p.window)
	if err != nil {
		return err
	}
	if posted {
		return p.recordFailure(ctx, sig, "", "", "", "market already posted within window")
	}

	d, err := p.stores.Decisions.GetDecision(ctx, sig.EventID, sig.Market)
	if err != nil {
		return fmt.Errorf("load decision: %w", err)
	}
	if d.SelectionID != sig.Entry.SelectionID {
		return p.recordFailure(ctx, sig, "", "", "", "decision selection drifted from frozen entry")
	}

	event, err := p.stores.Events.Get(ctx, sig.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	payload := payloadFrom(event, sig, d)
	tmpl, err := TemplateFor(signalTier(sig))
	if err != nil {
		return err
	}

	text := tmpl.Render(payload)
	renderedHash := hashText(text)

	// At-most-once per rendering
	already, err := p.stores.Publish.AlreadyPosted(ctx, sig.SignalID, tmpl.ID, renderedHash)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if err := p.validator.Validate(text, payload); err != nil {
		if p.metrics != nil {
			p.metrics.PostValidationFailed.Inc()
		}
		return p.recordFailure(ctx, sig, tmpl.ID, renderedHash, text, err.Error())
	}

	messageID, err := p.telegram.SendMessage(ctx, text)
	if err != nil {
		return p.recordFailure(ctx, sig, tmpl.ID, renderedHash, text, fmt.Sprintf("send failed: %v", err))
	}

	att := &store.PublishAttempt{
		SignalID:          sig.SignalID,
		TemplateID:        tmpl.ID,
		RenderedHash:      renderedHash,
		RenderedText:      text,
		Posted:            true,
		TelegramMessageID: messageID,
		CreatedAt:         time.Now().UTC(),
	}
	if err := p.stores.Publish.Append(ctx, store.CallerPublisher, att); err != nil {
		return err
	}

	if p.auditor != nil {
		p.auditor.RecordPublish(ctx, sig.SignalID, sig.EventID, messageID)
	}
	if p.metrics != nil {
		p.metrics.PostsSent.Inc()
	}

	log.Printf("[Publisher] posted signal %s (%s %s) message %s", sig.SignalID, sig.Sport, sig.Market, messageID)
	return nil
}

func (p *Publisher) recordFailure(ctx context.Context, sig *models.Signal, templateID, renderedHash, text, reason string) error {
	if templateID == "" {
		templateID = "none"
	}
	if renderedHash == "" {
		renderedHash = hashText(reason + sig.SignalID)
	}
	return p.stores.Publish.Append(ctx, store.CallerPublisher, &store.PublishAttempt{
		SignalID:      sig.SignalID,
		TemplateID:    templateID,
		RenderedHash:  renderedHash,
		RenderedText:  text,
		Posted:        false,
		FailureReason: reason,
		CreatedAt:     time.Now().UTC(),
	})
}

// payloadFrom maps the canonical records to the template payload. No field
// is derived here: lines and odds come from the frozen entry, probabilities
// from the publish-time decision.
func payloadFrom(event *models.Event, sig *models.Signal, d *models.MarketDecision) Payload {
	p := Payload{
		League:       event.League,
		HomeTeam:     event.HomeTeamName,
		AwayTeam:     event.AwayTeamName,
		MarketType:   sig.Entry.MarketType,
		Line:         sig.Entry.EntryLine,
		AmericanOdds: sig.Entry.EntryOdds,
		ModelProb:    d.ModelProb,
		ImpliedProb:  d.MarketImpliedProb,
		EntryOdds:    sig.Entry.EntryOdds,
		WorstOdds:    sig.Entry.WorstAcceptableOdds,
	}
	if d.Pick != nil {
		p.PickTeam = d.Pick.TeamName
		p.PickSide = d.Pick.Side
	}
	if d.Edge != nil {
		p.EdgeGrade = d.Edge.Grade
	}
	return p
}

// signalTier maps the publish-wave classification to a template tier.
// Published signals are EDGE by construction; anything else renders the
// conservative template.
func signalTier(sig *models.Signal) models.Tier {
	rec := sig.WaveResult(models.WavePublish)
	if rec != nil && rec.Classification == models.ClassEdge {
		return models.TierEdge
	}
	return models.TierLean
}

// priorityRank orders the queue: EDGE signals ahead of leans, and within
// EDGE those whose entry still beats the worst-acceptable floor ahead of
// constrained ones
func priorityRank(sig *models.Signal) int {
	rec := sig.WaveResult(models.WavePublish)
	if rec == nil {
		return 3
	}
	constrained := sig.Entry != nil && sig.Entry.EntryOdds <= sig.Entry.WorstAcceptableOdds
	if rec.Classification == models.ClassEdge {
		if constrained {
			return 1
		}
		return 0
	}
	if constrained {
		return 3
	}
	return 2
}

func lockedAt(sig *models.Signal) time.Time {
	if sig.Entry != nil {
		return sig.Entry.LockedAt
	}
	return sig.UpdatedAt
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
