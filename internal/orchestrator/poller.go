package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// Backoff bounds for failed polls
const (
	backoffMin = 10 * time.Second
	backoffMax = 10 * time.Minute
)

// preferredBooks orders bookmaker selection for snapshot extraction
var preferredBooks = []string{"pinnacle", "draftkings", "fanduel"}

// leaguePoller drives one league's odds polling loop
type leaguePoller struct {
	league   models.League
	provider *oddsapi.Client
	stores   *store.Stores
	interval time.Duration
	onEvent  func(ctx context.Context, event *models.Event)
}

// Run polls until the context ends, with bounded exponential backoff on
// failures
func (p *leaguePoller) Run(ctx context.Context) {
	log.Printf("[%s] starting odds poller", p.league)

	delay := p.interval
	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] stopping odds poller", p.league)
			return
		case <-time.After(delay):
		}

		if err := p.pollOnce(ctx); err != nil {
			log.Printf("[%s] poll error: %v", p.league, err)
			delay = nextBackoff(delay, p.interval)
			continue
		}
		delay = p.interval
	}
}

// nextBackoff starts at the floor on the first failure and doubles up to
// the ceiling; a successful poll resets the delay to the base interval
func nextBackoff(current, base time.Duration) time.Duration {
	if current == base {
		return backoffMin
	}
	next := current * 2
	if next > backoffMax {
		return backoffMax
	}
	return next
}

// pollOnce fetches the board and appends snapshots for every event
func (p *leaguePoller) pollOnce(ctx context.Context) error {
	events, err := p.provider.FetchOdds(ctx, p.league)
	if err != nil {
		return err
	}

	for i := range events {
		oddsEvent := &events[i]
		event := eventFrom(p.league, oddsEvent)

		// Events freeze at start: no more market updates
		if event.Frozen(time.Now()) {
			continue
		}

		if err := p.stores.Events.Upsert(ctx, store.CallerOrchestrator, event); err != nil {
			log.Printf("[%s] upsert event %s: %v", p.league, event.EventID, err)
			continue
		}

		snap, err := snapshotFrom(event.EventID, oddsEvent)
		if err != nil {
			log.Printf("[%s] snapshot for %s: %v", p.league, event.EventID, err)
			continue
		}
		if err := p.stores.Snapshots.Record(ctx, store.CallerOrchestrator, snap); err != nil {
			log.Printf("[%s] record snapshot %s: %v", p.league, event.EventID, err)
			continue
		}

		if p.onEvent != nil {
			p.onEvent(ctx, event)
		}
	}

	return nil
}

// EventIDFor derives the internal event id. It is independent of the
// provider id, which is stored separately and used only at grading.
func EventIDFor(league models.League, home, away string, commence time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s|%d", league, home, away, commence.Unix())
	sum := sha256.Sum256([]byte(payload))
	return "evt_" + hex.EncodeToString(sum[:10])
}

func eventFrom(league models.League, oe *oddsapi.OddsEvent) *models.Event {
	return &models.Event{
		EventID:      EventIDFor(league, oe.HomeTeam, oe.AwayTeam, oe.CommenceTime),
		League:       league,
		HomeTeamID:   teamID(league, oe.HomeTeam),
		AwayTeamID:   teamID(league, oe.AwayTeam),
		HomeTeamName: oe.HomeTeam,
		AwayTeamName: oe.AwayTeam,
		StartTime:    oe.CommenceTime,
		ProviderMap:  models.ProviderEventMap{OddsAPIEventID: oe.ID},
	}
}

func teamID(league models.League, name string) string {
	sum := sha256.Sum256([]byte(string(league) + "|" + name))
	return "team_" + hex.EncodeToString(sum[:8])
}

// snapshotFrom extracts one book's three markets into a snapshot
func snapshotFrom(eventID string, oe *oddsapi.OddsEvent) (*models.MarketSnapshot, error) {
	book := pickBook(oe)
	if book == nil {
		return nil, fmt.Errorf("no bookmakers on event")
	}

	snap := &models.MarketSnapshot{
		EventID:    eventID,
		Wave:       models.WavePoll,
		ObservedAt: book.LastUpdate.UTC(),
		BookID:     book.Key,
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}

	for _, market := range book.Markets {
		switch market.Key {
		case "h2h":
			for _, outcome := range market.Outcomes {
				switch outcome.Name {
				case oe.HomeTeam:
					snap.MLHome = outcome.Price
				case oe.AwayTeam:
					snap.MLAway = outcome.Price
				}
			}
		case "spreads":
			for _, outcome := range market.Outcomes {
				if outcome.Point == nil {
					continue
				}
				switch outcome.Name {
				case oe.HomeTeam:
					snap.SpreadHome = *outcome.Point
					snap.SpreadHomePrice = outcome.Price
				case oe.AwayTeam:
					snap.SpreadAway = *outcome.Point
					snap.SpreadAwayPrice = outcome.Price
				}
			}
		case "totals":
			for _, outcome := range market.Outcomes {
				if outcome.Point == nil {
					continue
				}
				switch outcome.Name {
				case "Over":
					snap.Total = *outcome.Point
					snap.OverPrice = outcome.Price
				case "Under":
					snap.UnderPrice = outcome.Price
				}
			}
		}
	}

	if snap.MLHome == 0 || snap.MLAway == 0 || snap.Total == 0 {
		return nil, fmt.Errorf("incomplete markets from book %s", book.Key)
	}

	return snap, nil
}

func pickBook(oe *oddsapi.OddsEvent) *oddsapi.Bookmaker {
	for _, preferred := range preferredBooks {
		for i := range oe.Bookmakers {
			if oe.Bookmakers[i].Key == preferred {
				return &oe.Bookmakers[i]
			}
		}
	}
	if len(oe.Bookmakers) > 0 {
		return &oe.Bookmakers[0]
	}
	return nil
}
