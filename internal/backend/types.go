package backend

type User struct {
	Name                     string `json:"name,omitempty"`
	SubscriptionStatus       string `json:"subscriptionStatus,omitempty"`
	RemainingInterpretations int    `json:"remainingInterpretations,omitempty"`
	LastFreeInterpretationAt string `json:"lastFreeInterpretationAt,omitempty"`
}

type InterpretResult struct {
	SessionID       string `json:"sessionId"`
	InitialResponse string `json:"initialResponse,omitempty"`
}

type FollowUpResult struct {
	Response string `json:"response"`
}

type HistoryEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// HistoryPage is one page of past dialogues. Never cached; every navigation
// re-fetches it.
type HistoryPage struct {
	Entries    []HistoryEntry `json:"data"`
	Page       int            `json:"page,omitempty"`
	TotalPages int            `json:"totalPages,omitempty"`
}

type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SessionDetail struct {
	Title    string           `json:"title,omitempty"`
	Messages []SessionMessage `json:"messages"`
}
