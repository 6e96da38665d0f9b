// Package backend wraps the Morpheus gateway REST API. Every call is
// time-bounded; retry policy belongs to callers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 15 * time.Second
	// History page size matches the gateway's pagination contract.
	HistoryPageSize = 5
)

type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	Logger     *slog.Logger
}

type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (c *Client) FindUser(ctx context.Context, userID int64) (*User, error) {
	var out User
	path := fmt.Sprintf("/telegram/user/%d", userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type interpretRequest struct {
	TelegramID int64  `json:"telegramId"`
	Text       string `json:"text"`
}

type interpretResponse struct {
	SessionID       string `json:"sessionId,omitempty"`
	InitialResponse string `json:"initialResponse,omitempty"`
	Response        string `json:"response,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (c *Client) Interpret(ctx context.Context, userID int64, text string) (*InterpretResult, error) {
	var out interpretResponse
	payload := interpretRequest{TelegramID: userID, Text: text}
	if err := c.doJSON(ctx, http.MethodPost, "/telegram/interpret", payload, &out); err != nil {
		return nil, err
	}
	// The gateway may answer 200 with an error payload (e.g. quota exhausted).
	if msg := strings.TrimSpace(out.Error); msg != "" {
		return nil, &AppError{Status: http.StatusOK, Message: msg}
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return nil, &TransportError{Reason: "internal", Err: fmt.Errorf("interpret response missing sessionId")}
	}
	return &InterpretResult{SessionID: out.SessionID, InitialResponse: out.InitialResponse}, nil
}

func (c *Client) FollowUp(ctx context.Context, sessionID string, userID int64, text string) (*FollowUpResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	var out interpretResponse
	payload := interpretRequest{TelegramID: userID, Text: text}
	if err := c.doJSON(ctx, http.MethodPost, "/telegram/interpret/"+sessionID, payload, &out); err != nil {
		return nil, err
	}
	if msg := strings.TrimSpace(out.Error); msg != "" {
		return nil, &AppError{Status: http.StatusOK, Message: msg}
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, &TransportError{Reason: "internal", Err: fmt.Errorf("follow-up response missing text")}
	}
	return &FollowUpResult{Response: out.Response}, nil
}

func (c *Client) History(ctx context.Context, userID int64, page int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	var out HistoryPage
	path := fmt.Sprintf("/telegram/history/%d?page=%d&limit=%d", userID, page, HistoryPageSize)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Page == 0 {
		out.Page = page
	}
	return &out, nil
}

func (c *Client) Session(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	var out SessionDetail
	if err := c.doJSON(ctx, http.MethodGet, "/telegram/session/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type deleteSessionRequest struct {
	TelegramID int64 `json:"telegramId"`
}

// DeleteSession succeeds only on 204; any other response is returned as an
// error carrying the status for the caller to surface verbatim.
func (c *Client) DeleteSession(ctx context.Context, sessionID string, userID int64) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	status, body, err := c.do(ctx, http.MethodDelete, "/telegram/session/"+sessionID, deleteSessionRequest{TelegramID: userID})
	if err != nil {
		return err
	}
	if status == http.StatusNoContent {
		return nil
	}
	return &AppError{Status: status, Message: errorMessageFromBody(body)}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	status, body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 200 && status < 300:
		if err := json.Unmarshal(body, out); err != nil {
			return &TransportError{Reason: "internal", Err: fmt.Errorf("decode %s %s: %w", method, path, err)}
		}
		return nil
	default:
		if msg := errorMessageFromBody(body); msg != "" {
			return &AppError{Status: status, Message: msg}
		}
		return &TransportError{Reason: "internal", Err: fmt.Errorf("%s %s: http %d", method, path, status)}
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			c.logger.Warn("backend_request_timeout", "method", method, "path", path)
			return 0, nil, &TransportError{Reason: "timeout", Err: err}
		}
		c.logger.Warn("backend_request_error", "method", method, "path", path, "error", err.Error())
		return 0, nil, &TransportError{Reason: "unreachable", Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.StatusCode, nil, &TransportError{Reason: "internal", Err: readErr}
	}
	return resp.StatusCode, raw, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func errorMessageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var out errorBody
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out.Error)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}
