// Package oddsapi is the HTTP client for the odds and scores provider.
// Scores are fetched by exact provider event id only; no team-name lookup
// happens at runtime.
package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// ErrUnavailable is returned when the provider cannot be reached or the
// circuit is open
var ErrUnavailable = errors.New("odds provider unavailable")

// sportKeys maps leagues to the provider's sport keys
var sportKeys = map[models.League]string{
	models.LeagueNBA:   "basketball_nba",
	models.LeagueNCAAB: "basketball_ncaab",
	models.LeagueNFL:   "americanfootball_nfl",
	models.LeagueNCAAF: "americanfootball_ncaaf",
	models.LeagueMLB:   "baseball_mlb",
	models.LeagueNHL:   "icehockey_nhl",
}

// SportKey returns the provider key for a league
func SportKey(league models.League) (string, error) {
	key, ok := sportKeys[league]
	if !ok {
		return "", fmt.Errorf("no provider sport key for league %s", league)
	}
	return key, nil
}

// Outcome is one side of a provider market
type Outcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Market is one provider market (h2h, spreads, totals)
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker carries one book's markets
type Bookmaker struct {
	Key        string    `json:"key"`
	LastUpdate time.Time `json:"last_update"`
	Markets    []Market  `json:"markets"`
}

// OddsEvent is one event row from the odds feed
type OddsEvent struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// TeamScore is one team's final score
type TeamScore struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// EventScore is the provider's score payload for one event
type EventScore struct {
	ID        string      `json:"id"`
	SportKey  string      `json:"sport_key"`
	HomeTeam  string      `json:"home_team"`
	AwayTeam  string      `json:"away_team"`
	Completed bool        `json:"completed"`
	Scores    []TeamScore `json:"scores"`
}

// Client talks to the provider with a circuit breaker. A tripped breaker
// fails fast with ErrUnavailable until the provider recovers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates the provider client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oddsapi",
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// FetchOdds pulls the current odds board for a league
func (c *Client) FetchOdds(ctx context.Context, league models.League) ([]OddsEvent, error) {
	sportKey, err := SportKey(league)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/sports/%s/odds/?apiKey=%s&regions=us&markets=h2h,spreads,totals&oddsFormat=american",
		c.baseURL, sportKey, url.QueryEscape(c.apiKey))

	var events []OddsEvent
	if err := c.getJSON(ctx, endpoint, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchScore pulls the score for one event by exact provider event id.
// A nil result means the provider has no score row for the id yet.
func (c *Client) FetchScore(ctx context.Context, league models.League, providerEventID string) (*EventScore, json.RawMessage, error) {
	sportKey, err := SportKey(league)
	if err != nil {
		return nil, nil, err
	}

	endpoint := fmt.Sprintf("%s/sports/%s/scores/?apiKey=%s&daysFrom=3&eventIds=%s",
		c.baseURL, sportKey, url.QueryEscape(c.apiKey), url.QueryEscape(providerEventID))

	var raw json.RawMessage
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, nil, err
	}

	var scores []EventScore
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, nil, fmt.Errorf("decode scores: %w", err)
	}

	for i := range scores {
		if scores[i].ID == providerEventID {
			return &scores[i], raw, nil
		}
	}
	return nil, raw, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: provider returned %d: %s", ErrUnavailable, resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return err
	}
	return nil
}
