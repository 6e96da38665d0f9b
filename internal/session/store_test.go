package session

import "testing"

func TestEndDialogueClearsSessionID(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.BeginDialogue(42)
	store.BindSession(42, "abc")

	st := store.Get(42)
	if st.Phase != PhaseDialogue || st.SessionID != "abc" {
		t.Fatalf("state mismatch: got %+v want dialogue/abc", st)
	}

	store.EndDialogue(42)
	st = store.Get(42)
	if st.Phase != PhaseIdle {
		t.Fatalf("phase mismatch: got %v want idle", st.Phase)
	}
	if st.SessionID != "" {
		t.Fatalf("session id not cleared: got %q", st.SessionID)
	}
}

func TestBindSessionRequiresDialogue(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.BindSession(42, "abc")
	if st := store.Get(42); st.SessionID != "" {
		t.Fatalf("session id bound while idle: got %q", st.SessionID)
	}
}

func TestTakePendingDeleteConsumesMatch(t *testing.T) {
	t.Parallel()

	store := NewStore()
	if store.TakePendingDelete(42, "abc") {
		t.Fatalf("TakePendingDelete() without request = true, want false")
	}

	store.SetPendingDelete(42, "abc", 1)
	if store.TakePendingDelete(42, "other") {
		t.Fatalf("TakePendingDelete() with wrong session = true, want false")
	}
	if !store.TakePendingDelete(42, "abc") {
		t.Fatalf("TakePendingDelete() with match = false, want true")
	}
	if store.TakePendingDelete(42, "abc") {
		t.Fatalf("TakePendingDelete() twice = true, want false")
	}
}

func TestNewerPendingDeleteSupersedes(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.SetPendingDelete(42, "abc", 1)
	store.SetPendingDelete(42, "def", 2)

	if store.TakePendingDelete(42, "abc") {
		t.Fatalf("superseded confirmation still valid")
	}
	if !store.TakePendingDelete(42, "def") {
		t.Fatalf("latest confirmation not valid")
	}
}
