package sentinel

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/pythia/internal/flags"
	"github.com/XavierBriggs/pythia/internal/store"
)

// purgeHorizon is how far back queued publish work is discarded on rollback
const purgeHorizon = 30 * time.Minute

// Rollback is the controller the sentinel may trigger on a critical
// breach: purge recent queue entries and turn off risky feature flags.
type Rollback struct {
	redisClient *redis.Client
	flags       *flags.Service
	queueStream string
}

// NewRollback creates the controller
func NewRollback(redisClient *redis.Client, flagSvc *flags.Service, queueStream string) *Rollback {
	return &Rollback{redisClient: redisClient, flags: flagSvc, queueStream: queueStream}
}

// Execute performs the rollback
func (r *Rollback) Execute(ctx context.Context, breaches []string) error {
	log.Printf("[Rollback] executing: %v", breaches)

	purged, err := r.purgeRecentQueue(ctx)
	if err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	log.Printf("[Rollback] purged %d queued entries", purged)

	for _, flag := range []string{store.FlagLLMCopyAgent, store.FlagParlayEnabled} {
		if err := r.flags.Set(ctx, store.CallerSentinel, flag, false); err != nil {
			log.Printf("[Rollback] disable %s: %v", flag, err)
		}
	}

	return nil
}

// purgeRecentQueue deletes stream entries younger than the purge horizon.
// Stream ids are millisecond timestamps, so the horizon maps to an id range.
func (r *Rollback) purgeRecentQueue(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-purgeHorizon).UnixMilli()
	startID := strconv.FormatInt(cutoff, 10) + "-0"

	entries, err := r.redisClient.XRange(ctx, r.queueStream, startID, "+").Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return 0, nil
		}
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}

	if err := r.redisClient.XDel(ctx, r.queueStream, ids...).Err(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
