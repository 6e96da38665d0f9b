package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3r0ha/morpheus-project/internal/pushchan"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	err     error
}

func (f *fakeSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, int64, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.err = nil
		f.mu.Unlock()
		return nil, offset, err
	}
	if len(f.batches) == 0 {
		f.mu.Unlock()
		// Block like a real long poll until shutdown.
		<-ctx.Done()
		return nil, offset, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()
	return batch, offset + int64(len(batch)), nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentOut
	done chan struct{}
}

type sentOut struct {
	ChatID int64
	Text   string
	Opts   *telegram.SendOptions
}

func (f *fakeSender) record(chatID int64, text string, opts *telegram.SendOptions) {
	f.mu.Lock()
	f.sent = append(f.sent, sentOut{ChatID: chatID, Text: text, Opts: opts})
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, opts *telegram.SendOptions) error {
	f.record(chatID, text, opts)
	return nil
}

func (f *fakeSender) SendMessageChunked(_ context.Context, chatID int64, text string) error {
	f.record(chatID, text, nil)
	return nil
}

func (f *fakeSender) snapshot() []sentOut {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentOut(nil), f.sent...)
}

type fakeHandler struct {
	mu       sync.Mutex
	messages []string
	done     chan struct{}
}

func (f *fakeHandler) HandleMessage(_ context.Context, chatID int64, _ int64, text string) {
	f.mu.Lock()
	f.messages = append(f.messages, text)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakeHandler) HandleCallback(_ context.Context, cb *telegram.CallbackQuery) {
	f.mu.Lock()
	f.messages = append(f.messages, "cb:"+cb.Data)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakeHandler) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// fakePush captures handler registrations so tests can inject events.
type fakePush struct {
	handlers map[string]pushchan.HandlerFunc
}

func (f *fakePush) Handle(name string, fn pushchan.HandlerFunc) error {
	if f.handlers == nil {
		f.handlers = make(map[string]pushchan.HandlerFunc)
	}
	if _, ok := f.handlers[name]; ok {
		return errors.New("duplicate handler")
	}
	f.handlers[name] = fn
	return nil
}

func (f *fakePush) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func msgUpdate(id, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: id,
			Chat:      &telegram.Chat{ID: chatID, Type: "private"},
			From:      &telegram.User{ID: chatID},
			Text:      text,
		},
	}
}

func newTestRuntime(t *testing.T, source *fakeSource, push PushClient) (*Runtime, *fakeSender, *fakeHandler) {
	t.Helper()
	sender := &fakeSender{done: make(chan struct{}, 16)}
	handler := &fakeHandler{done: make(chan struct{}, 16)}
	rt, err := New(Options{
		Source:      source,
		Sender:      sender,
		Handler:     handler,
		Push:        push,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		PollTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return rt, sender, handler
}

func waitSignals(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for signal %d of %d", i+1, n)
		}
	}
}

func TestInboundMessagesStaySerialPerChat(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]telegram.Update{
		{msgUpdate(1, 42, "first"), msgUpdate(2, 42, "second"), msgUpdate(3, 42, "third")},
	}}
	rt, _, handler := newTestRuntime(t, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = rt.Run(ctx)
		close(done)
	}()

	waitSignals(t, handler.done, 3)
	got := handler.snapshot()
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}

func TestCallbackQueriesAreRouted(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]telegram.Update{{
		{
			UpdateID: 1,
			CallbackQuery: &telegram.CallbackQuery{
				ID:      "cb1",
				From:    &telegram.User{ID: 42},
				Message: &telegram.Message{MessageID: 7, Chat: &telegram.Chat{ID: 42}},
				Data:    "history:page:2",
			},
		},
	}}}
	rt, _, handler := newTestRuntime(t, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	waitSignals(t, handler.done, 1)
	if got := handler.snapshot()[0]; got != "cb:history:page:2" {
		t.Fatalf("callback routing mismatch: got %q", got)
	}
}

func TestPushResponseForwardedVerbatim(t *testing.T) {
	t.Parallel()

	push := &fakePush{}
	source := &fakeSource{}
	rt, sender, _ := newTestRuntime(t, source, push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	fn := push.handlers[pushchan.EventTelegramResponse]
	if fn == nil {
		t.Fatalf("telegram_response handler not registered")
	}
	if err := fn(ctx, json.RawMessage(`{"telegramId":42,"content":"Your dream means change."}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	waitSignals(t, sender.done, 1)
	sent := sender.snapshot()
	if sent[0].ChatID != 42 || sent[0].Text != "Your dream means change." {
		t.Fatalf("forward mismatch: got %+v", sent[0])
	}
}

func TestPushAuthConfirmedSendsWelcomeWithMenu(t *testing.T) {
	t.Parallel()

	push := &fakePush{}
	rt, sender, _ := newTestRuntime(t, &fakeSource{}, push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	fn := push.handlers[pushchan.EventUserAuthed]
	if fn == nil {
		t.Fatalf("user_authed handler not registered")
	}
	if err := fn(ctx, json.RawMessage(`{"telegramId":42,"name":"Lena"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	waitSignals(t, sender.done, 1)
	sent := sender.snapshot()[0]
	if sent.ChatID != 42 || !strings.Contains(sent.Text, "Lena") {
		t.Fatalf("welcome mismatch: got %+v", sent)
	}
	if sent.Opts == nil || sent.Opts.ReplyKeyboard == nil {
		t.Fatalf("welcome is missing the main menu keyboard")
	}
}

func TestPushPayloadMissingUserIDIsRejected(t *testing.T) {
	t.Parallel()

	push := &fakePush{}
	rt, sender, _ := newTestRuntime(t, &fakeSource{}, push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	fn := push.handlers[pushchan.EventTelegramResponse]
	if err := fn(ctx, json.RawMessage(`{"content":"orphan"}`)); err == nil {
		t.Fatalf("payload without telegramId accepted")
	}
	if len(sender.snapshot()) != 0 {
		t.Fatalf("orphan payload was forwarded: %v", sender.snapshot())
	}
}

func TestPollErrorDoesNotStopOutboundDelivery(t *testing.T) {
	t.Parallel()

	push := &fakePush{}
	source := &fakeSource{err: errors.New("gateway exploded")}
	rt, sender, _ := newTestRuntime(t, source, push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	fn := push.handlers[pushchan.EventTelegramResponse]
	if err := fn(ctx, json.RawMessage(`{"telegramId":7,"content":"still alive"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	waitSignals(t, sender.done, 1)
	if got := sender.snapshot()[0].Text; got != "still alive" {
		t.Fatalf("outbound delivery mismatch: got %q", got)
	}
}

func TestGroupChatMessagesIgnored(t *testing.T) {
	t.Parallel()

	update := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			Chat:      &telegram.Chat{ID: -100, Type: "supergroup"},
			From:      &telegram.User{ID: 42},
			Text:      "hello group",
		},
	}
	source := &fakeSource{batches: [][]telegram.Update{{update, msgUpdate(2, 42, "private hello")}}}
	rt, _, handler := newTestRuntime(t, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	waitSignals(t, handler.done, 1)
	got := handler.snapshot()
	if len(got) != 1 || got[0] != "private hello" {
		t.Fatalf("group filtering mismatch: got %v", got)
	}
}
