// Package bridge composes the long-poll inbound loop, the push channel and
// the outbound sender into one runtime. The loops fail independently; only
// context cancellation stops them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/3r0ha/morpheus-project/internal/dialogue"
	"github.com/3r0ha/morpheus-project/internal/pushchan"
	"github.com/3r0ha/morpheus-project/internal/telegram"
	"github.com/3r0ha/morpheus-project/internal/worker"
)

// UpdateSource is the inbound half of the chat transport. *telegram.API
// satisfies it.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

// Sender delivers addressed outbound messages. *telegram.API satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
	SendMessageChunked(ctx context.Context, chatID int64, text string) error
}

// InboundHandler consumes routed chat input. *dialogue.Handler satisfies it.
type InboundHandler interface {
	HandleMessage(ctx context.Context, chatID int64, userID int64, text string)
	HandleCallback(ctx context.Context, cb *telegram.CallbackQuery)
}

// PushClient is the persistent push connection. *pushchan.Client satisfies
// it. Nil is allowed in tests; the bot command always wires one.
type PushClient interface {
	Handle(name string, fn pushchan.HandlerFunc) error
	Run(ctx context.Context) error
}

// Outbound is one addressed message originated by a push event. Telegram
// private chats share the user's id, so UserID doubles as the chat id.
type Outbound struct {
	UserID int64
	Text   string
	Opts   *telegram.SendOptions
}

type Options struct {
	Source  UpdateSource
	Sender  Sender
	Handler InboundHandler
	Push    PushClient
	Logger  *slog.Logger

	// PollTimeout is the long-poll window. Defaults to 30s.
	PollTimeout time.Duration
	// MaxConcurrency caps how many chats are processed at once. Messages
	// within one chat stay serial. Defaults to 3.
	MaxConcurrency int
	// OutboundBuffer sizes the push-to-sender queue. Defaults to 64.
	OutboundBuffer int
}

type chatWorker struct {
	jobs chan telegram.Update
}

type Runtime struct {
	source  UpdateSource
	sender  Sender
	handler InboundHandler
	push    PushClient
	logger  *slog.Logger

	pollTimeout    time.Duration
	maxConcurrency int

	outbound chan Outbound

	mu      sync.Mutex
	workers map[int64]*chatWorker
}

func New(opts Options) (*Runtime, error) {
	if opts.Source == nil {
		return nil, errors.New("bridge: update source is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("bridge: sender is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("bridge: inbound handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	buffer := opts.OutboundBuffer
	if buffer <= 0 {
		buffer = 64
	}

	r := &Runtime{
		source:         opts.Source,
		sender:         opts.Sender,
		handler:        opts.Handler,
		push:           opts.Push,
		logger:         logger,
		pollTimeout:    pollTimeout,
		maxConcurrency: maxConcurrency,
		outbound:       make(chan Outbound, buffer),
		workers:        make(map[int64]*chatWorker),
	}
	if r.push != nil {
		if err := r.registerPushHandlers(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Run drives all loops until ctx is canceled, then waits for them to stop.
func (r *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if r.push != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("bridge_push_stopped", "error", err.Error())
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.senderLoop(ctx)
	}()

	r.logger.Info("bridge_start", "poll_timeout", r.pollTimeout.String(), "max_concurrency", r.maxConcurrency)
	r.pollLoop(ctx)

	wg.Wait()
	r.logger.Info("bridge_stop", "reason", "context_canceled")
	return nil
}

func (r *Runtime) registerPushHandlers() error {
	err := r.push.Handle(pushchan.EventTelegramResponse, func(ctx context.Context, data json.RawMessage) error {
		var payload telegramResponsePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode telegram_response: %w", err)
		}
		if payload.TelegramID == 0 {
			return errors.New("telegram_response missing telegramId")
		}
		return r.enqueueOutbound(ctx, Outbound{UserID: payload.TelegramID, Text: payload.Content})
	})
	if err != nil {
		return err
	}
	return r.push.Handle(pushchan.EventUserAuthed, func(ctx context.Context, data json.RawMessage) error {
		var payload userAuthedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode user_authed: %w", err)
		}
		if payload.TelegramID == 0 {
			return errors.New("user_authed missing telegramId")
		}
		text, opts := dialogue.AuthConfirmedMessage(payload.Name)
		return r.enqueueOutbound(ctx, Outbound{UserID: payload.TelegramID, Text: text, Opts: opts})
	})
}

func (r *Runtime) enqueueOutbound(ctx context.Context, out Outbound) error {
	select {
	case r.outbound <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) senderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-r.outbound:
			var err error
			if out.Opts != nil {
				err = r.sender.SendMessage(ctx, out.UserID, out.Text, out.Opts)
			} else {
				err = r.sender.SendMessageChunked(ctx, out.UserID, out.Text)
			}
			if err != nil {
				r.logger.Warn("bridge_outbound_send_error", "chat_id", out.UserID, "error", err.Error())
			} else {
				r.logger.Debug("bridge_outbound_sent", "chat_id", out.UserID)
			}
		}
	}
}

func (r *Runtime) pollLoop(ctx context.Context) {
	sem := make(chan struct{}, r.maxConcurrency)
	var offset int64

	for {
		if ctx.Err() != nil {
			return
		}
		updates, next, err := r.source.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if telegram.IsPollTimeoutError(err) {
				r.logger.Debug("bridge_get_updates_timeout", "error", err.Error())
				continue
			}
			r.logger.Warn("bridge_get_updates_error", "error", err.Error())
			if sleepErr := sleepWithContext(ctx, 2*time.Second); sleepErr != nil {
				return
			}
			continue
		}
		offset = next

		for _, update := range updates {
			chatID, ok := updateChatID(update)
			if !ok {
				continue
			}
			w := r.workerFor(ctx, chatID, sem)
			if err := worker.Enqueue(ctx, ctx, w.jobs, update); err != nil {
				return
			}
		}
	}
}

func (r *Runtime) workerFor(ctx context.Context, chatID int64, sem chan struct{}) *chatWorker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[chatID]; ok {
		return w
	}
	w := &chatWorker{jobs: make(chan telegram.Update, 16)}
	r.workers[chatID] = w
	worker.Start(worker.StartOptions[telegram.Update]{
		Ctx:    ctx,
		Sem:    sem,
		Jobs:   w.jobs,
		Handle: r.handleUpdate,
	})
	return w
}

func (r *Runtime) handleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.handler.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil || msg.From == nil || msg.From.IsBot {
			return
		}
		// Group chats are out of scope; the backend keys everything by the
		// private chat's user id.
		if msg.Chat.Type != "" && msg.Chat.Type != "private" {
			r.logger.Debug("bridge_non_private_chat_ignored", "chat_id", msg.Chat.ID, "chat_type", msg.Chat.Type)
			return
		}
		r.handler.HandleMessage(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
	}
}

func updateChatID(update telegram.Update) (int64, bool) {
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil {
		return update.CallbackQuery.Message.Chat.ID, true
	}
	if update.Message != nil && update.Message.Chat != nil {
		return update.Message.Chat.ID, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
