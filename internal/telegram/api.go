// Package telegram is a minimal Bot API client: long-poll updates in,
// messages and keyboards out.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &API{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
	}
}

type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
		}
		return "telegram: " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, body)
		}
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	}
	if body != "" {
		return "telegram: " + body
	}
	return "telegram request failed"
}

type okResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type getMeResponse struct {
	OK     bool `json:"ok"`
	Result User `json:"result"`
}

func (api *API) GetMe(ctx context.Context) (*User, error) {
	raw, status, err := api.call(ctx, http.MethodGet, "getMe", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, requestErrorFromBody(status, raw)
	}
	var out getMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getMe: ok=false")
	}
	return &out.Result, nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

// GetUpdates long-polls for new updates and returns them with the next
// offset to acknowledge them.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	payload := getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "edited_message", "callback_query"},
	}
	raw, status, err := api.call(reqCtx, http.MethodPost, "getUpdates", payload)
	if err != nil {
		return nil, offset, err
	}
	if status < 200 || status >= 300 {
		return nil, offset, requestErrorFromBody(status, raw)
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           any    `json:"reply_markup,omitempty"`
}

type SendOptions struct {
	InlineKeyboard *InlineKeyboardMarkup
	ReplyKeyboard  *ReplyKeyboardMarkup
	DisablePreview bool
}

func (api *API) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if opts != nil {
		req.DisableWebPagePreview = opts.DisablePreview
		switch {
		case opts.InlineKeyboard != nil:
			req.ReplyMarkup = opts.InlineKeyboard
		case opts.ReplyKeyboard != nil:
			req.ReplyMarkup = opts.ReplyKeyboard
		}
	}
	return api.callOK(ctx, "sendMessage", req)
}

// SendMessageChunked splits long texts so each send stays under the Bot API
// message size cap.
func (api *API) SendMessageChunked(ctx context.Context, chatID int64, text string) error {
	const max = 3500
	text = strings.TrimSpace(text)
	if text == "" {
		return api.SendMessage(ctx, chatID, "(empty)", nil)
	}
	for len(text) > 0 {
		chunk := text
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		if err := api.SendMessage(ctx, chatID, chunk, &SendOptions{DisablePreview: true}); err != nil {
			return err
		}
		text = strings.TrimSpace(text[len(chunk):])
	}
	return nil
}

type editMessageTextRequest struct {
	ChatID      int64  `json:"chat_id"`
	MessageID   int64  `json:"message_id"`
	Text        string `json:"text"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

func (api *API) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	req := editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: strings.TrimSpace(text)}
	if markup != nil {
		req.ReplyMarkup = markup
	}
	return api.callOK(ctx, "editMessageText", req)
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

func (api *API) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	return api.callOK(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
}

type sendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

func (api *API) SendChatAction(ctx context.Context, chatID int64, action string) error {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "typing"
	}
	return api.callOK(ctx, "sendChatAction", sendChatActionRequest{ChatID: chatID, Action: action})
}

func (api *API) callOK(ctx context.Context, method string, payload any) error {
	raw, status, err := api.call(ctx, http.MethodPost, method, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return requestErrorFromBody(status, raw)
	}
	var ok okResponse
	_ = json.Unmarshal(raw, &ok)
	if !ok.OK {
		return requestErrorFromBody(status, raw)
	}
	return nil
}

func (api *API) call(ctx context.Context, httpMethod, method string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(raw)
	}
	url := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return raw, resp.StatusCode, nil
}

func requestErrorFromBody(status int, raw []byte) error {
	var parsed okResponse
	_ = json.Unmarshal(raw, &parsed)
	return &RequestError{
		StatusCode:  status,
		ErrorCode:   parsed.ErrorCode,
		Description: parsed.Description,
		Body:        strings.TrimSpace(string(raw)),
	}
}

// IsPollTimeoutError reports whether the error is just the long poll timing
// out, which is routine and not worth a warning.
func IsPollTimeoutError(err error) bool {
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
