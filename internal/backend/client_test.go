package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestFindUserNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/telegram/user/42" {
			t.Fatalf("path mismatch: got %q want %q", r.URL.Path, "/telegram/user/42")
		}
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FindUser(context.Background(), 42)
	if !IsNotFound(err) {
		t.Fatalf("FindUser() error = %v, want ErrNotFound", err)
	}
}

func TestFindUserDecodesProfile(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Ada","subscriptionStatus":"PREMIUM","remainingInterpretations":7}`))
	})

	user, err := client.FindUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindUser() error = %v", err)
	}
	if user.Name != "Ada" {
		t.Fatalf("name mismatch: got %q want %q", user.Name, "Ada")
	}
	if user.SubscriptionStatus != "PREMIUM" {
		t.Fatalf("subscription mismatch: got %q want %q", user.SubscriptionStatus, "PREMIUM")
	}
	if user.RemainingInterpretations != 7 {
		t.Fatalf("remaining mismatch: got %d want 7", user.RemainingInterpretations)
	}
}

func TestInterpretSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method mismatch: got %q want POST", r.Method)
		}
		_, _ = w.Write([]byte(`{"sessionId":"abc","initialResponse":"Tell me more"}`))
	})

	res, err := client.Interpret(context.Background(), 42, "I dreamt of flying")
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if res.SessionID != "abc" {
		t.Fatalf("session id mismatch: got %q want %q", res.SessionID, "abc")
	}
	if res.InitialResponse != "Tell me more" {
		t.Fatalf("initial response mismatch: got %q want %q", res.InitialResponse, "Tell me more")
	}
}

func TestInterpretSurfacesBackendError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"no interpretations left"}`))
	})

	_, err := client.Interpret(context.Background(), 42, "a dream")
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Interpret() error = %v, want AppError", err)
	}
	if appErr.Message != "no interpretations left" {
		t.Fatalf("message mismatch: got %q want %q", appErr.Message, "no interpretations left")
	}
	if UserMessage(err) != "no interpretations left" {
		t.Fatalf("UserMessage mismatch: got %q", UserMessage(err))
	}
}

func TestInterpretMalformedBodyIsTransportError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Interpret(context.Background(), 42, "a dream")
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("Interpret() error = %v, want TransportError", err)
	}
	if tErr.Reason != "internal" {
		t.Fatalf("reason mismatch: got %q want %q", tErr.Reason, "internal")
	}
}

func TestRequestTimeoutIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.FindUser(context.Background(), 42)
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("FindUser() error = %v, want TransportError", err)
	}
	if tErr.Reason != "timeout" {
		t.Fatalf("reason mismatch: got %q want %q", tErr.Reason, "timeout")
	}
}

func TestHistoryIsIdempotent(t *testing.T) {
	t.Parallel()

	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.String())
		_, _ = w.Write([]byte(`{"data":[{"id":"s1","title":"Flying"}],"page":2,"totalPages":3}`))
	})

	first, err := client.History(context.Background(), 42, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	second, err := client.History(context.Background(), 42, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}

	if len(paths) != 2 || paths[0] != paths[1] {
		t.Fatalf("request paths mismatch: got %v", paths)
	}
	if len(first.Entries) != 1 || first.Entries[0].ID != "s1" {
		t.Fatalf("entries mismatch: got %+v", first.Entries)
	}
	if first.Page != second.Page || first.TotalPages != second.TotalPages {
		t.Fatalf("pages mismatch: first %+v second %+v", first, second)
	}
}

func TestHistoryClampsPage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Fatalf("page mismatch: got %q want %q", got, "1")
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("limit mismatch: got %q want %q", got, "5")
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	page, err := client.History(context.Background(), 42, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if page.Page != 1 {
		t.Fatalf("page mismatch: got %d want 1", page.Page)
	}
	if len(page.Entries) != 0 {
		t.Fatalf("entries mismatch: got %d want 0", len(page.Entries))
	}
}

func TestDeleteSessionOnlyNoContentSucceeds(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method mismatch: got %q want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := client.DeleteSession(context.Background(), "abc", 42); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	err := failing.DeleteSession(context.Background(), "abc", 42)
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("DeleteSession() error = %v, want AppError", err)
	}
	if appErr.Status != http.StatusOK {
		t.Fatalf("status mismatch: got %d want 200", appErr.Status)
	}
}
