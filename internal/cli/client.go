package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crudeidle/internal/game"
	"crudeidle/internal/syncq"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the server. Anything else returned by
// the client means the request never got a verdict.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type PlatformOffer struct {
	Kind           game.PlatformKind `json:"platform_type"`
	CreateCost     int64             `json:"create_cost"`
	UpgradeCost    int64             `json:"upgrade_cost"`
	YieldIncrement int64             `json:"yield_increment"`
}

type CatalogView struct {
	MaxLevel  int             `json:"max_level"`
	Platforms []PlatformOffer `json:"platforms"`
}

type ReplayResult struct {
	IdempotencyKey string               `json:"idempotency_key"`
	Status         int                  `json:"status"`
	Error          string               `json:"error,omitempty"`
	Result         *game.MutationResult `json:"result,omitempty"`
}

func (c *Client) Balance(ctx context.Context) (game.BalanceView, error) {
	var out game.BalanceView
	err := c.jsonRequest(ctx, http.MethodGet, "/api/balance", nil, &out, "")
	return out, err
}

func (c *Client) Platforms(ctx context.Context) ([]game.Platform, error) {
	var out struct {
		Platforms []game.Platform `json:"platforms"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/platforms", nil, &out, "")
	return out.Platforms, err
}

func (c *Client) CreatePlatform(ctx context.Context, kind, idem string) (game.MutationResult, error) {
	var out game.MutationResult
	err := c.jsonRequest(ctx, http.MethodPost, "/api/platforms", map[string]any{
		"platform_type": kind,
	}, &out, idem)
	return out, err
}

func (c *Client) UpgradePlatform(ctx context.Context, id uuid.UUID, idem string) (game.MutationResult, error) {
	var out game.MutationResult
	err := c.jsonRequest(ctx, http.MethodPatch, "/api/platforms/"+url.PathEscape(id.String()), nil, &out, idem)
	return out, err
}

func (c *Client) Items(ctx context.Context) ([]game.Item, error) {
	var out struct {
		Items []game.Item `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/items", nil, &out, "")
	return out.Items, err
}

func (c *Client) PurchaseItem(ctx context.Context, id uuid.UUID, idem string) (game.MutationResult, error) {
	var out game.MutationResult
	err := c.jsonRequest(ctx, http.MethodPatch, "/api/items/"+url.PathEscape(id.String()), nil, &out, idem)
	return out, err
}

func (c *Client) Ledger(ctx context.Context) ([]game.LedgerEntry, error) {
	var out struct {
		Entries []game.LedgerEntry `json:"entries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/ledger", nil, &out, "")
	return out.Entries, err
}

func (c *Client) Summary(ctx context.Context) (game.Summary, error) {
	var out game.Summary
	err := c.jsonRequest(ctx, http.MethodGet, "/api/summary", nil, &out, "")
	return out, err
}

func (c *Client) Catalog(ctx context.Context) (CatalogView, error) {
	var out CatalogView
	err := c.jsonRequest(ctx, http.MethodGet, "/api/catalog", nil, &out, "")
	return out, err
}

// ReplayBatchSize is the most commands the server accepts per replay.
const ReplayBatchSize = 100

// SyncReplay posts commands in batches of ReplayBatchSize. On error it
// returns the results of the batches that did land.
func (c *Client) SyncReplay(ctx context.Context, commands []syncq.Command) ([]ReplayResult, error) {
	results := make([]ReplayResult, 0, len(commands))
	for start := 0; start < len(commands); start += ReplayBatchSize {
		end := min(start+ReplayBatchSize, len(commands))
		var out struct {
			Results []ReplayResult `json:"results"`
		}
		err := c.jsonRequest(ctx, http.MethodPost, "/api/sync/replay", map[string]any{
			"commands": commands[start:end],
		}, &out, "")
		if err != nil {
			return results, err
		}
		results = append(results, out.Results...)
	}
	return results, nil
}

// Watch streams live settlement updates into fn until ctx is done, the
// server closes the socket, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(game.Update) error) error {
	wsURL, err := c.wsURL("/ws/game-state")
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "websocket upgrade refused"}
		}
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var u game.Update
		if err := conn.ReadJSON(&u); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
