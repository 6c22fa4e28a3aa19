package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"track_record/internal/audit"
	"track_record/internal/infra"
)

const sendTimeout = 5 * time.Second

// Client talks to the remote chain authority: POST /events for ingest,
// GET /state/{instanceId} for recovery. Both calls block for at most the
// configured timeout; a timed-out call is simply a failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a new ingest client.
func NewClient(cfg *infra.Config, instanceID string) *Client {
	return &Client{
		baseURL: cfg.Audit.BaseURL,
		httpClient: &http.Client{
			Timeout: sendTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    2,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(instanceID, cfg.Audit.Secret),
		logger: slog.Default().With("module", "ingest_client"),
	}
}

// Send transmits one event envelope. Returns true only for a 2xx response.
// Every other outcome (timeout, connection refused, non-2xx, auth
// rejection) returns false; the caller drops the event, never queues it.
func (c *Client) Send(ctx context.Context, env *audit.Envelope) bool {
	body, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("envelope marshal failed", slog.Any("error", err))
		return false
	}

	started := time.Now()
	resp, err := c.doRequest(ctx, http.MethodPost, "/events", body)
	infra.GlobalMetrics.RecordSendLatency(time.Since(started).Nanoseconds())
	if err != nil {
		infra.GlobalMetrics.RecordSendFailure()
		c.logSendError(err, env)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) // drain for connection reuse

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		infra.GlobalMetrics.RecordSendFailure()
		c.logger.Error("event rejected: authentication failed",
			slog.Int("status", resp.StatusCode),
			slog.Uint64("seqNo", env.SeqNo),
			slog.String("remedy", "verify audit.secret in the config or the TRACK_AUDIT_SECRET env var matches the server"))
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		infra.GlobalMetrics.RecordSendFailure()
		c.logger.Warn("event rejected by server",
			slog.Int("status", resp.StatusCode),
			slog.String("eventType", env.EventType),
			slog.Uint64("seqNo", env.SeqNo))
		return false
	}
	return true
}

// stateResponse is the recovery endpoint's body.
type stateResponse struct {
	LastSeqNo     uint64 `json:"lastSeqNo"`
	LastEventHash string `json:"lastEventHash"`
}

// Recover fetches the remote authority's view of this instance's chain
// head. ok is false for any non-2xx response or malformed body; the caller
// then starts a fresh chain from genesis. That trade-off (break continuity
// rather than refuse to operate) is deliberate.
func (c *Client) Recover(ctx context.Context, instanceID string) (seqNo uint64, lastHash string, ok bool) {
	path := "/state/" + instanceID
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.logger.Warn("recovery request failed", slog.Any("error", err))
		return 0, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("no prior state at remote authority",
			slog.Int("status", resp.StatusCode),
			slog.String("instanceId", instanceID))
		return 0, "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("recovery response read failed", slog.Any("error", err))
		return 0, "", false
	}

	var state stateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		c.logger.Warn("recovery response malformed", slog.Any("error", err))
		return 0, "", false
	}
	if !audit.IsHex64(state.LastEventHash) {
		c.logger.Warn("recovery response carries malformed hash",
			slog.String("lastEventHash", state.LastEventHash))
		return 0, "", false
	}

	return state.LastSeqNo, state.LastEventHash, true
}

// doRequest handles auth headers and serialization
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	headers := c.signer.GenerateHeaders(method, path, string(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.httpClient.Do(req)
}

// logSendError distinguishes configuration-class failures (actionable by
// the operator) from ordinary transmission failures.
func (c *Client) logSendError(err error, env *audit.Envelope) {
	var urlErr interface{ Timeout() bool }
	switch {
	case errors.As(err, &urlErr) && urlErr.Timeout():
		c.logger.Warn("event send timed out",
			slog.Uint64("seqNo", env.SeqNo),
			slog.Duration("timeout", sendTimeout))
	case errors.Is(err, context.Canceled):
		c.logger.Warn("event send canceled", slog.Uint64("seqNo", env.SeqNo))
	default:
		c.logger.Warn(fmt.Sprintf("event send failed: %v", err),
			slog.Uint64("seqNo", env.SeqNo),
			slog.String("hint", "if this host restricts outbound calls, allow the audit base URL"))
	}
}
