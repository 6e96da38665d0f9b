package bridge

// Push event payloads. A payload missing its user id is a protocol
// violation: the handler reports an error and the event is dropped.

type telegramResponsePayload struct {
	TelegramID int64  `json:"telegramId"`
	Content    string `json:"content"`
}

type userAuthedPayload struct {
	TelegramID int64  `json:"telegramId"`
	Name       string `json:"name"`
}
