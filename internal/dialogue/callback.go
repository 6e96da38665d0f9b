package dialogue

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback data layout. Telegram caps callback_data at 64 bytes, which fits
// a cuid session id plus a page number comfortably.
const (
	callbackHistoryOpen = "history:open"

	callbackPrefixHistoryPage   = "history:page:"
	callbackPrefixSessionView   = "session:view:"
	callbackPrefixSessionDelete = "session:delete:"
	callbackPrefixSessionConfrm = "session:confirm:"
)

func callbackHistoryPage(page int) string {
	return callbackPrefixHistoryPage + strconv.Itoa(page)
}

func callbackSessionView(sessionID string, page int) string {
	return fmt.Sprintf("%s%s:%d", callbackPrefixSessionView, sessionID, page)
}

func callbackSessionDelete(sessionID string, page int) string {
	return fmt.Sprintf("%s%s:%d", callbackPrefixSessionDelete, sessionID, page)
}

func callbackSessionConfirm(sessionID string, page int) string {
	return fmt.Sprintf("%s%s:%d", callbackPrefixSessionConfrm, sessionID, page)
}

func parseHistoryPage(data string) (int, bool) {
	raw, ok := strings.CutPrefix(data, callbackPrefixHistoryPage)
	if !ok {
		return 0, false
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// parseSessionAction splits "<prefix><sessionID>:<page>". The page is the
// last colon-separated field so session ids never need escaping.
func parseSessionAction(data, prefix string) (sessionID string, page int, ok bool) {
	rest, found := strings.CutPrefix(data, prefix)
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 {
		return "", 0, false
	}
	page, err := strconv.Atoi(rest[idx+1:])
	if err != nil || page < 1 {
		return "", 0, false
	}
	return rest[:idx], page, true
}
