// Package ragerapssdk is a minimal client for the RageRaps HTTP API.
package ragerapssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal RageRaps HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Battle represents the API battle model.
type Battle struct {
	ID          string  `json:"id"`
	Contestant1 string  `json:"contestant1"`
	Contestant2 string  `json:"contestant2"`
	Style1      string  `json:"style1"`
	Style2      string  `json:"style2"`
	RoundCount  int     `json:"round_count"`
	Rounds      []Round `json:"rounds,omitempty"`
	Status      string  `json:"status"`
	Wins1       int     `json:"wins1"`
	Wins2       int     `json:"wins2"`
	Winner      string  `json:"winner,omitempty"`
	Draw        bool    `json:"draw,omitempty"`
}

type Round struct {
	ID          string    `json:"id"`
	BattleID    string    `json:"battle_id"`
	RoundNumber int       `json:"round_number"`
	Verse1      *Verse    `json:"verse1,omitempty"`
	Verse2      *Verse    `json:"verse2,omitempty"`
	Judgment    *Judgment `json:"judgment,omitempty"`
	Status      string    `json:"status"`
}

type Verse struct {
	ID         string `json:"id"`
	Contestant string `json:"contestant"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
}

type Judgment struct {
	ID         string `json:"id"`
	RoundID    string `json:"round_id"`
	Winner     string `json:"winner"`
	Feedback   string `json:"feedback,omitempty"`
	Analysis1  string `json:"analysis1,omitempty"`
	Analysis2  string `json:"analysis2,omitempty"`
	Comparison string `json:"comparison,omitempty"`
	Source     string `json:"source"`
}

// Event represents a log entry.
type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	BattleID string `json:"battle_id,omitempty"`
	ActorID  string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateBattle starts a new battle.
func (c *Client) CreateBattle(ctx context.Context, contestant1, contestant2, style1, style2 string, rounds int) (Battle, error) {
	var out Battle
	err := c.do(ctx, http.MethodPost, "v1/battles", map[string]any{
		"contestant1": contestant1,
		"contestant2": contestant2,
		"style1":      style1,
		"style2":      style2,
		"rounds":      rounds,
	}, &out)
	return out, err
}

// GetBattle fetches a battle with its rounds.
func (c *Client) GetBattle(ctx context.Context, battleID string) (Battle, error) {
	var out Battle
	err := c.do(ctx, http.MethodGet, "v1/battles/"+url.PathEscape(battleID), nil, &out)
	return out, err
}

// ListBattles fetches all battles.
func (c *Client) ListBattles(ctx context.Context) ([]Battle, error) {
	var out struct {
		Battles []Battle `json:"battles"`
	}
	err := c.do(ctx, http.MethodGet, "v1/battles", nil, &out)
	return out.Battles, err
}

// Advance runs the next round of the battle.
func (c *Client) Advance(ctx context.Context, battleID string) (Round, error) {
	var out Round
	err := c.do(ctx, http.MethodPost, "v1/battles/"+url.PathEscape(battleID)+"/advance", nil, &out)
	return out, err
}

// JudgeRound requests an AI judgment for a round.
func (c *Client) JudgeRound(ctx context.Context, battleID, roundID string) (Judgment, error) {
	var out Judgment
	err := c.do(ctx, http.MethodPost, c.roundPath(battleID, roundID, "judge"), nil, &out)
	return out, err
}

// UserJudgeRound records a manual judgment for a round.
func (c *Client) UserJudgeRound(ctx context.Context, battleID, roundID, winner, feedback string) (Judgment, error) {
	var out Judgment
	err := c.do(ctx, http.MethodPost, c.roundPath(battleID, roundID, "user-judge"), map[string]any{
		"winner":   winner,
		"feedback": feedback,
	}, &out)
	return out, err
}

// Events fetches the latest events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/events?limit=%d", limit), nil, &out)
	return out.Events, err
}

func (c *Client) roundPath(battleID, roundID, action string) string {
	return fmt.Sprintf("v1/battles/%s/rounds/%s/%s", url.PathEscape(battleID), url.PathEscape(roundID), action)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
