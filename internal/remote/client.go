package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"

	models "arkado/internal/models"
)

// Sentinel errors for the failure modes the session layer must
// distinguish from generic remote trouble.
var (
	// ErrRateLimited: the backend refused to create another session for
	// this device. Surfaced to the player as a distinct condition, not a
	// generic error.
	ErrRateLimited = errors.New("remote: too many active sessions")

	// ErrSessionExpired: the backend considers the session over. The
	// caller reacts exactly like a local hard expiry.
	ErrSessionExpired = errors.New("remote: session expired")

	// ErrNotFound: the requested record does not exist.
	ErrNotFound = errors.New("remote: not found")
)

// Client talks JSON over HTTP to the reward backend. Every call takes a
// context and is bounded by the configured timeout; callers treat the
// backend as a black box and branch only on the sentinel errors.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ models.RemoteService = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateSession(ctx context.Context, deviceID string, meta map[string]string) (models.SessionGrant, error) {
	body := map[string]any{"deviceId": deviceID, "metadata": meta}
	var grant models.SessionGrant
	err := c.call(ctx, http.MethodPost, "/v1/sessions", body, &grant)
	return grant, err
}

func (c *Client) SubmitScore(ctx context.Context, sessionID, gameType string, score int, startedAt, completedAt time.Time) (models.ScoreResult, error) {
	body := map[string]any{
		"gameType":    gameType,
		"score":       score,
		"startedAt":   startedAt.UnixMilli(),
		"completedAt": completedAt.UnixMilli(),
	}
	var result models.ScoreResult
	err := c.call(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/score", body, &result)
	return result, err
}

// EndSession is idempotent: a session the backend no longer knows about
// counts as ended.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	err := c.call(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

type tierStatus struct {
	Tier      int  `json:"tier"`
	Available bool `json:"available"`
}

func (c *Client) CheckVoucherAvailability(ctx context.Context, gameType string) (models.TierAvailability, error) {
	var resp struct {
		Tiers []tierStatus `json:"tiers"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/vouchers/availability?gameType="+gameType, nil, &resp); err != nil {
		return nil, err
	}
	return lo.SliceToMap(resp.Tiers, func(ts tierStatus) (int, bool) {
		return ts.Tier, ts.Available
	}), nil
}

func (c *Client) RedeemVoucher(ctx context.Context, code string, meta map[string]string) error {
	body := map[string]any{"code": code, "metadata": meta}
	return c.call(ctx, http.MethodPost, "/v1/vouchers/redeem", body, nil)
}

func (c *Client) LatestReward(ctx context.Context, sessionID string) (models.RewardRecord, error) {
	var record models.RewardRecord
	err := c.call(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/reward", nil, &record)
	return record, err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusGone:
		return ErrSessionExpired
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
