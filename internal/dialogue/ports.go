// Package dialogue routes inbound chat input through the per-user state
// machine and the history browser. It owns every SessionState mutation.
package dialogue

import (
	"context"

	"github.com/3r0ha/morpheus-project/internal/backend"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

// Backend is the slice of the remote service the dialogue layer needs.
// *backend.Client satisfies it.
type Backend interface {
	FindUser(ctx context.Context, userID int64) (*backend.User, error)
	Interpret(ctx context.Context, userID int64, text string) (*backend.InterpretResult, error)
	FollowUp(ctx context.Context, sessionID string, userID int64, text string) (*backend.FollowUpResult, error)
	History(ctx context.Context, userID int64, page int) (*backend.HistoryPage, error)
	Session(ctx context.Context, sessionID string) (*backend.SessionDetail, error)
	DeleteSession(ctx context.Context, sessionID string, userID int64) error
}

// Responder is the outbound half of the chat transport. *telegram.API
// satisfies it.
type Responder interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
	SendMessageChunked(ctx context.Context, chatID int64, text string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}
