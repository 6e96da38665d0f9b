package dialogue

import (
	"fmt"

	"github.com/3r0ha/morpheus-project/internal/backend"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

func mainMenu() *telegram.ReplyKeyboardMarkup {
	return &telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: buttonStartDialogue}},
			{{Text: buttonProfile}},
		},
		ResizeKeyboard: true,
	}
}

func dialogueMenu() *telegram.ReplyKeyboardMarkup {
	return &telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: buttonEndDialogue}},
		},
		ResizeKeyboard: true,
	}
}

func onboardingKeyboard(appURL string) *telegram.InlineKeyboardMarkup {
	if appURL == "" {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: buttonOpenSite, URL: appURL}},
		},
	}
}

func profileKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: buttonShowHistory, CallbackData: callbackHistoryOpen}},
		},
	}
}

// historyKeyboard lists one button per entry plus a prev/next row when there
// is more than one page.
func historyKeyboard(page *backend.HistoryPage) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(page.Entries)+1)
	for _, entry := range page.Entries {
		title := entry.Title
		if title == "" {
			title = "Untitled dream"
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         title,
			CallbackData: callbackSessionView(entry.ID, page.Page),
		}})
	}
	var nav []telegram.InlineKeyboardButton
	if page.Page > 1 {
		nav = append(nav, telegram.InlineKeyboardButton{
			Text:         buttonPrevPage,
			CallbackData: callbackHistoryPage(page.Page - 1),
		})
	}
	if page.Page < page.TotalPages {
		nav = append(nav, telegram.InlineKeyboardButton{
			Text:         buttonNextPage,
			CallbackData: callbackHistoryPage(page.Page + 1),
		})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	if page.TotalPages > 1 {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         fmt.Sprintf("Page %d/%d", page.Page, page.TotalPages),
			CallbackData: callbackHistoryPage(page.Page),
		}})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func sessionViewKeyboard(sessionID string, page int) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: buttonBack, CallbackData: callbackHistoryPage(page)},
				{Text: buttonDelete, CallbackData: callbackSessionDelete(sessionID, page)},
			},
		},
	}
}

func confirmDeleteKeyboard(sessionID string, page int) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: buttonConfirmDelete, CallbackData: callbackSessionConfirm(sessionID, page)},
				{Text: buttonCancelDelete, CallbackData: callbackSessionView(sessionID, page)},
			},
		},
	}
}
