// backfill is the offline provider-id reconciliation utility. It is the
// only place team-name similarity matching is permitted; the runtime
// settlement path requires exact provider ids.
//
// Usage: backfill -league NBA [-apply]
// Exit codes: 0 success, 2 usage, 5 provider unavailable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func main() {
	leagueFlag := flag.String("league", "", "league to backfill (NBA, NFL, NHL, MLB, NCAAB, NCAAF)")
	apply := flag.Bool("apply", false, "write matches; default is a dry run")
	flag.Parse()

	if *leagueFlag == "" {
		fmt.Println("usage: backfill -league <LEAGUE> [-apply]")
		os.Exit(2)
	}
	league, err := models.ParseLeague(*leagueFlag)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	alexandriaDB, err := store.Open(cfg.AlexandriaDSN)
	if err != nil {
		fmt.Printf("❌ Failed to connect to Alexandria: %v\n", err)
		os.Exit(5)
	}
	defer alexandriaDB.Close()

	holocronDB, err := store.Open(cfg.HolocronDSN)
	if err != nil {
		fmt.Printf("❌ Failed to connect to Holocron: %v\n", err)
		os.Exit(5)
	}
	defer holocronDB.Close()

	guard := store.NewGuard(metrics.New())
	stores := store.New(alexandriaDB, holocronDB, guard)
	provider := oddsapi.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	providerEvents, err := provider.FetchOdds(ctx, league)
	if err != nil {
		fmt.Printf("❌ Provider fetch failed: %v\n", err)
		if errors.Is(err, oddsapi.ErrUnavailable) {
			os.Exit(5)
		}
		os.Exit(1)
	}

	events, err := stores.Events.Upcoming(ctx, time.Now().Add(-24*time.Hour), time.Now().Add(14*24*time.Hour))
	if err != nil {
		fmt.Printf("❌ Load events: %v\n", err)
		os.Exit(1)
	}

	matched, ambiguous := 0, 0
	for i := range events {
		event := &events[i]
		if event.League != league || event.ProviderMap.OddsAPIEventID != "" {
			continue
		}

		candidate := bestMatch(event, providerEvents)
		if candidate == nil {
			ambiguous++
			fmt.Printf("⚠️  No confident match for %s (%s @ %s)\n", event.EventID, event.AwayTeamName, event.HomeTeamName)
			continue
		}

		fmt.Printf("✓ %s -> provider %s (%s @ %s)\n", event.EventID, candidate.ID, candidate.AwayTeam, candidate.HomeTeam)
		matched++

		if *apply {
			if err := stores.Events.SetProviderID(ctx, store.CallerAdminBackfill, event.EventID, candidate.ID); err != nil {
				fmt.Printf("❌ Write provider id for %s: %v\n", event.EventID, err)
			}
		}
	}

	mode := "dry run"
	if *apply {
		mode = "applied"
	}
	fmt.Printf("✓ Backfill complete (%s): %d matched, %d unmatched\n", mode, matched, ambiguous)
}

// bestMatch pairs an event with a provider row by start time proximity and
// token-overlap name similarity. Both teams must clear the similarity bar
// and exactly one candidate may qualify.
func bestMatch(event *models.Event, providerEvents []oddsapi.OddsEvent) *oddsapi.OddsEvent {
	var match *oddsapi.OddsEvent
	for i := range providerEvents {
		pe := &providerEvents[i]

		delta := pe.CommenceTime.Sub(event.StartTime)
		if delta < -2*time.Hour || delta > 2*time.Hour {
			continue
		}
		if similarity(event.HomeTeamName, pe.HomeTeam) < 0.5 || similarity(event.AwayTeamName, pe.AwayTeam) < 0.5 {
			continue
		}
		if match != nil {
			return nil // ambiguous
		}
		match = pe
	}
	return match
}

// similarity is the share of overlapping lowercase name tokens
func similarity(a, b string) float64 {
	tokensA := strings.Fields(strings.ToLower(a))
	tokensB := strings.Fields(strings.ToLower(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	overlap := 0
	for _, t := range tokensA {
		if setB[t] {
			overlap++
		}
	}

	max := len(tokensA)
	if len(tokensB) > max {
		max = len(tokensB)
	}
	return float64(overlap) / float64(max)
}
