package dialogue

import "github.com/3r0ha/morpheus-project/internal/telegram"

// Menu button labels. Inbound free text is matched against these verbatim,
// so they double as commands.
const (
	buttonStartDialogue = "▶️ Start dialogue"
	buttonProfile       = "👤 Profile"
	buttonEndDialogue   = "⏹️ End dialogue"
	buttonShowHistory   = "📖 Dream history"
	buttonOpenSite      = "Open the site"
	buttonBack          = "⬅️ Back"
	buttonDelete        = "🗑 Delete"
	buttonConfirmDelete = "Yes, delete"
	buttonCancelDelete  = "Cancel"
	buttonPrevPage      = "⬅️"
	buttonNextPage      = "➡️"
)

const (
	textOnboarding = "Hi! To use the dream interpreter, please sign in or register on our site first. You only need to do this once."

	textIdleHint = "Press \"" + buttonStartDialogue + "\" to tell me a dream, or check your profile."

	textDialogueReady = "I am ready to listen. Describe your dream and I will help you unravel it."
	textDialogueEnded = "Dialogue finished. Whenever you want to discuss another dream, just press \"" + buttonStartDialogue + "\"."

	// Fallback when the backend opens a session without an initial reply.
	textInitialFallback = "An interesting dream... Let me think."

	textFirstMessageFailed = "Sorry, I could not start the interpretation. Please try again later."
	textFollowUpFailed     = "Sorry, I could not process that. Please try again."

	textProfileLoadFailed = "Could not load your profile. You may need to link your account again."
	textQuotaCooldownHint = "Your next free interpretation becomes available 3 days after the last one."

	textHistoryIntro      = "Here is your dream history. Tap a dream to see the full conversation."
	textHistoryEmpty      = "Your dream history is empty so far. Tell me your first dream!"
	textHistoryPageIntact = "Nothing changed"
	textSessionLoadFailed = "Could not load this dream."

	textConfirmDelete       = "Delete this dream? This cannot be undone."
	textDeleting            = "Deleting the dream..."
	textDeleted             = "✅ Dream deleted."
	textDeleteExpired       = "This delete request has expired. Open the dream again to delete it."
	textDeleteTransportFail = "Could not delete the dream right now. Please try again later."
)

func welcomeBackText(name string) string {
	if name == "" {
		name = "dreamer"
	}
	return "Welcome back, " + name + "! What shall we do?"
}

// AuthConfirmedMessage is the reply to a completed account-linking push
// event. The bridge sends it outside the normal inbound flow, so it lives
// here next to the other user-facing texts.
func AuthConfirmedMessage(name string) (string, *telegram.SendOptions) {
	if name == "" {
		name = "dreamer"
	}
	text := "Great, " + name + "! Your account is linked. Now I am ready to listen to your dreams."
	return text, &telegram.SendOptions{ReplyKeyboard: mainMenu()}
}
