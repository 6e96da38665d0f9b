package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/3r0ha/morpheus-project/internal/backend"
	"github.com/3r0ha/morpheus-project/internal/session"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

type Options struct {
	Backend   Backend
	Responder Responder
	Store     *session.Store
	Logger    *slog.Logger
	// AppURL is the login site offered to unregistered users. Optional;
	// when empty the onboarding message carries no button.
	AppURL string
}

// Handler turns one inbound message or callback into backend calls, state
// transitions and replies. It is safe for concurrent use across users; the
// bridge serializes messages per chat.
type Handler struct {
	backend   Backend
	responder Responder
	store     *session.Store
	logger    *slog.Logger
	appURL    string
}

func NewHandler(opts Options) (*Handler, error) {
	if opts.Backend == nil {
		return nil, errors.New("dialogue: backend is required")
	}
	if opts.Responder == nil {
		return nil, errors.New("dialogue: responder is required")
	}
	if opts.Store == nil {
		return nil, errors.New("dialogue: session store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:   opts.Backend,
		responder: opts.Responder,
		store:     opts.Store,
		logger:    logger,
		appURL:    strings.TrimSpace(opts.AppURL),
	}, nil
}

// HandleMessage routes one free-text message from a private chat.
func (h *Handler) HandleMessage(ctx context.Context, chatID int64, userID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	switch {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		h.handleStart(ctx, chatID, userID)
		return
	case text == buttonStartDialogue:
		h.handleStartDialogue(ctx, chatID, userID)
		return
	case text == buttonEndDialogue:
		h.handleEndDialogue(ctx, chatID, userID)
		return
	case text == buttonProfile:
		h.handleProfile(ctx, chatID, userID)
		return
	}

	if h.store.Get(userID).Phase == session.PhaseDialogue {
		h.handleDialogueMessage(ctx, chatID, userID, text)
		return
	}
	h.reply(ctx, chatID, textIdleHint, &telegram.SendOptions{ReplyKeyboard: mainMenu()})
}

// handleStart resets the user and greets them by their backend-stored name,
// or sends the onboarding prompt when the backend has never seen them.
func (h *Handler) handleStart(ctx context.Context, chatID int64, userID int64) {
	h.store.EndDialogue(userID)
	h.store.ClearPendingDelete(userID)

	user, err := h.backend.FindUser(ctx, userID)
	if err != nil {
		if backend.IsNotFound(err) {
			h.reply(ctx, chatID, textOnboarding, &telegram.SendOptions{InlineKeyboard: onboardingKeyboard(h.appURL)})
			return
		}
		h.logger.Warn("dialogue_find_user_error", "user_id", userID, "error", err.Error())
		h.reply(ctx, chatID, textProfileLoadFailed, &telegram.SendOptions{InlineKeyboard: onboardingKeyboard(h.appURL)})
		return
	}
	h.reply(ctx, chatID, welcomeBackText(user.Name), &telegram.SendOptions{ReplyKeyboard: mainMenu()})
}

func (h *Handler) handleStartDialogue(ctx context.Context, chatID int64, userID int64) {
	h.store.BeginDialogue(userID)
	h.reply(ctx, chatID, textDialogueReady, &telegram.SendOptions{ReplyKeyboard: dialogueMenu()})
}

func (h *Handler) handleEndDialogue(ctx context.Context, chatID int64, userID int64) {
	if h.store.Get(userID).Phase != session.PhaseDialogue {
		h.reply(ctx, chatID, textIdleHint, &telegram.SendOptions{ReplyKeyboard: mainMenu()})
		return
	}
	h.store.EndDialogue(userID)
	h.reply(ctx, chatID, textDialogueEnded, &telegram.SendOptions{ReplyKeyboard: mainMenu()})
}

// handleDialogueMessage implements the first-message/follow-up asymmetry: a
// failed session open abandons the dialogue, a failed exchange inside an
// established session keeps it.
func (h *Handler) handleDialogueMessage(ctx context.Context, chatID int64, userID int64, text string) {
	_ = h.responder.SendChatAction(ctx, chatID, "typing")

	state := h.store.Get(userID)
	if state.SessionID == "" {
		res, err := h.backend.Interpret(ctx, userID, text)
		if err != nil {
			h.logger.Warn("dialogue_interpret_error", "user_id", userID, "error", err.Error())
			errText := backend.UserMessage(err)
			if errText == "" {
				errText = textFirstMessageFailed
			}
			h.reply(ctx, chatID, errText, nil)
			h.store.EndDialogue(userID)
			h.reply(ctx, chatID, textDialogueEnded, &telegram.SendOptions{ReplyKeyboard: mainMenu()})
			return
		}
		h.store.BindSession(userID, res.SessionID)
		answer := res.InitialResponse
		if strings.TrimSpace(answer) == "" {
			answer = textInitialFallback
		}
		h.replyChunked(ctx, chatID, answer)
		return
	}

	res, err := h.backend.FollowUp(ctx, state.SessionID, userID, text)
	if err != nil {
		h.logger.Warn("dialogue_follow_up_error", "user_id", userID, "session_id", state.SessionID, "error", err.Error())
		h.reply(ctx, chatID, textFollowUpFailed, nil)
		return
	}
	h.replyChunked(ctx, chatID, res.Response)
}

func (h *Handler) handleProfile(ctx context.Context, chatID int64, userID int64) {
	_ = h.responder.SendChatAction(ctx, chatID, "typing")

	user, err := h.backend.FindUser(ctx, userID)
	if err != nil {
		if !backend.IsNotFound(err) {
			h.logger.Warn("dialogue_find_user_error", "user_id", userID, "error", err.Error())
		}
		h.reply(ctx, chatID, textProfileLoadFailed, &telegram.SendOptions{InlineKeyboard: onboardingKeyboard(h.appURL)})
		return
	}

	status := "Free"
	if user.SubscriptionStatus == "PREMIUM" {
		status = "Premium"
	}
	name := user.Name
	if name == "" {
		name = "Not set"
	}
	lines := []string{
		"👤 Your profile",
		"Name: " + name,
		"Plan: " + status,
		fmt.Sprintf("Interpretations left: %d", user.RemainingInterpretations),
	}
	if status == "Free" && user.RemainingInterpretations == 0 && user.LastFreeInterpretationAt != "" {
		lines = append(lines, "", textQuotaCooldownHint)
	}
	h.reply(ctx, chatID, strings.Join(lines, "\n"), &telegram.SendOptions{InlineKeyboard: profileKeyboard()})
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) {
	if err := h.responder.SendMessage(ctx, chatID, text, opts); err != nil {
		h.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}

func (h *Handler) replyChunked(ctx context.Context, chatID int64, text string) {
	if err := h.responder.SendMessageChunked(ctx, chatID, text); err != nil {
		h.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}
