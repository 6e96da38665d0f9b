package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3r0ha/morpheus-project/internal/backend"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

// HandleCallback routes one inline-button press. Every path answers the
// callback query so the client stops showing the progress spinner.
func (h *Handler) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := cb.From.ID
	data := strings.TrimSpace(cb.Data)

	switch {
	case data == callbackHistoryOpen:
		h.handleHistoryOpen(ctx, cb, chatID, userID)
	case strings.HasPrefix(data, callbackPrefixHistoryPage):
		page, ok := parseHistoryPage(data)
		if !ok {
			h.answerCallback(ctx, cb.ID, textSessionLoadFailed, true)
			return
		}
		h.handleHistoryPage(ctx, cb, chatID, messageID, userID, page)
	case strings.HasPrefix(data, callbackPrefixSessionView):
		sessionID, page, ok := parseSessionAction(data, callbackPrefixSessionView)
		if !ok {
			h.answerCallback(ctx, cb.ID, textSessionLoadFailed, true)
			return
		}
		h.handleSessionView(ctx, cb, chatID, messageID, userID, sessionID, page)
	case strings.HasPrefix(data, callbackPrefixSessionDelete):
		sessionID, page, ok := parseSessionAction(data, callbackPrefixSessionDelete)
		if !ok {
			h.answerCallback(ctx, cb.ID, textSessionLoadFailed, true)
			return
		}
		h.handleDeleteRequest(ctx, cb, chatID, messageID, userID, sessionID, page)
	case strings.HasPrefix(data, callbackPrefixSessionConfrm):
		sessionID, page, ok := parseSessionAction(data, callbackPrefixSessionConfrm)
		if !ok {
			h.answerCallback(ctx, cb.ID, textSessionLoadFailed, true)
			return
		}
		h.handleDeleteConfirm(ctx, cb, chatID, messageID, userID, sessionID, page)
	default:
		h.logger.Debug("dialogue_callback_unhandled", "data", data)
		h.answerCallback(ctx, cb.ID, "", false)
	}
}

// handleHistoryOpen posts the first history page as a fresh message (the
// profile message it was pressed on stays intact).
func (h *Handler) handleHistoryOpen(ctx context.Context, cb *telegram.CallbackQuery, chatID, userID int64) {
	h.store.ClearPendingDelete(userID)
	_ = h.responder.SendChatAction(ctx, chatID, "typing")

	page, err := h.backend.History(ctx, userID, 1)
	if err != nil {
		h.logger.Warn("history_fetch_error", "user_id", userID, "page", 1, "error", err.Error())
		h.reply(ctx, chatID, textFollowUpFailed, nil)
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}
	if len(page.Entries) == 0 {
		h.reply(ctx, chatID, textHistoryEmpty, nil)
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}
	h.reply(ctx, chatID, textHistoryIntro, &telegram.SendOptions{InlineKeyboard: historyKeyboard(page)})
	h.answerCallback(ctx, cb.ID, "", false)
}

// handleHistoryPage re-fetches the requested page and edits the history
// message in place. An edit refused because nothing changed degrades to a
// callback notice instead of an error.
func (h *Handler) handleHistoryPage(ctx context.Context, cb *telegram.CallbackQuery, chatID, messageID, userID int64, pageNum int) {
	h.store.ClearPendingDelete(userID)
	_ = h.responder.SendChatAction(ctx, chatID, "typing")

	page, err := h.backend.History(ctx, userID, pageNum)
	if err != nil {
		h.logger.Warn("history_fetch_error", "user_id", userID, "page", pageNum, "error", err.Error())
		h.answerCallback(ctx, cb.ID, textFollowUpFailed, true)
		return
	}
	if len(page.Entries) == 0 {
		h.editOrNotify(ctx, cb.ID, chatID, messageID, textHistoryEmpty, nil)
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}
	h.editOrNotify(ctx, cb.ID, chatID, messageID, textHistoryIntro, historyKeyboard(page))
	h.answerCallback(ctx, cb.ID, "", false)
}

// handleSessionView replaces the history message with the full transcript.
// A transcript with no messages is an error state, not an empty dream.
func (h *Handler) handleSessionView(ctx context.Context, cb *telegram.CallbackQuery, chatID, messageID, userID int64, sessionID string, page int) {
	h.store.ClearPendingDelete(userID)
	_ = h.responder.SendChatAction(ctx, chatID, "typing")

	detail, err := h.backend.Session(ctx, sessionID)
	if err != nil || len(detail.Messages) == 0 {
		if err != nil {
			h.logger.Warn("session_fetch_error", "session_id", sessionID, "error", err.Error())
		}
		h.answerCallback(ctx, cb.ID, textSessionLoadFailed, true)
		return
	}

	h.editOrNotify(ctx, cb.ID, chatID, messageID, renderTranscript(detail), sessionViewKeyboard(sessionID, page))
	h.answerCallback(ctx, cb.ID, "", false)
}

// handleDeleteRequest is step one of the two-step delete: record the pending
// confirmation and swap the transcript for a confirm/cancel prompt. No
// remote call happens here.
func (h *Handler) handleDeleteRequest(ctx context.Context, cb *telegram.CallbackQuery, chatID, messageID, userID int64, sessionID string, page int) {
	h.store.SetPendingDelete(userID, sessionID, page)
	h.editOrNotify(ctx, cb.ID, chatID, messageID, textConfirmDelete, confirmDeleteKeyboard(sessionID, page))
	h.answerCallback(ctx, cb.ID, "", false)
}

// handleDeleteConfirm is step two: the remote delete is issued only when a
// matching pending confirmation exists, and consuming it makes the confirm
// single-shot.
func (h *Handler) handleDeleteConfirm(ctx context.Context, cb *telegram.CallbackQuery, chatID, messageID, userID int64, sessionID string, page int) {
	if !h.store.TakePendingDelete(userID, sessionID) {
		h.logger.Info("history_delete_not_pending", "user_id", userID, "session_id", sessionID)
		h.answerCallback(ctx, cb.ID, textDeleteExpired, true)
		return
	}

	h.editOrNotify(ctx, cb.ID, chatID, messageID, textDeleting, nil)
	err := h.backend.DeleteSession(ctx, sessionID, userID)
	if err == nil {
		h.logger.Info("history_session_deleted", "user_id", userID, "session_id", sessionID)
		h.editOrNotify(ctx, cb.ID, chatID, messageID, textDeleted, nil)
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}

	h.logger.Warn("history_delete_error", "user_id", userID, "session_id", sessionID, "error", err.Error())
	var appErr *backend.AppError
	if errors.As(err, &appErr) {
		h.editOrNotify(ctx, cb.ID, chatID, messageID, fmt.Sprintf("❌ Could not delete the dream (status %d).", appErr.Status), nil)
	} else {
		h.editOrNotify(ctx, cb.ID, chatID, messageID, textDeleteTransportFail, nil)
	}
	h.answerCallback(ctx, cb.ID, "", false)
}

func renderTranscript(detail *backend.SessionDetail) string {
	var b strings.Builder
	title := detail.Title
	if title == "" {
		title = "Untitled dream"
	}
	b.WriteString("📜 Dream: " + title + "\n")
	for _, msg := range detail.Messages {
		role := "Morpheus"
		if msg.Role == "user" {
			role = "You"
		}
		b.WriteString("\n" + role + ":\n" + msg.Content + "\n")
	}
	return b.String()
}

// editOrNotify edits a message in place; when Telegram refuses because the
// content is identical, the user gets a callback notice instead.
func (h *Handler) editOrNotify(ctx context.Context, callbackID string, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) {
	err := h.responder.EditMessageText(ctx, chatID, messageID, text, markup)
	if err == nil {
		return
	}
	var reqErr *telegram.RequestError
	if errors.As(err, &reqErr) && strings.Contains(strings.ToLower(reqErr.Description), "message is not modified") {
		h.answerCallback(ctx, callbackID, textHistoryPageIntact, false)
		return
	}
	h.logger.Warn("telegram_edit_error", "chat_id", chatID, "message_id", messageID, "error", err.Error())
}

func (h *Handler) answerCallback(ctx context.Context, callbackID, text string, showAlert bool) {
	if callbackID == "" {
		return
	}
	if err := h.responder.AnswerCallbackQuery(ctx, callbackID, text, showAlert); err != nil {
		h.logger.Warn("telegram_answer_callback_error", "error", err.Error())
	}
}
