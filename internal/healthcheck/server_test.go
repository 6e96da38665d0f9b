package healthcheck

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/3r0ha/morpheus-project/internal/pushchan"
)

type stubPush pushchan.Status

func (s stubPush) Status() pushchan.Status { return pushchan.Status(s) }

func newTestServer(t *testing.T, push PushStatus) *Server {
	t.Helper()
	s, err := New(Options{
		Listen: "127.0.0.1:0",
		Push:   push,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, stubPush(pushchan.StatusDisconnected))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status mismatch: got %d want 200", rec.Code)
	}
}

func TestReadyzReflectsPushStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status pushchan.Status
		code   int
	}{
		{pushchan.StatusConnected, http.StatusOK},
		{pushchan.StatusConnecting, http.StatusServiceUnavailable},
		{pushchan.StatusDisconnected, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		s := newTestServer(t, stubPush(tc.status))
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != tc.code {
			t.Fatalf("readyz code mismatch for %v: got %d want %d", tc.status, rec.Code, tc.code)
		}
		if !strings.Contains(rec.Body.String(), tc.status.String()) {
			t.Fatalf("readyz body missing status: got %q", rec.Body.String())
		}
	}
}

func TestReadyzWithoutPushIsUnavailable(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz code mismatch: got %d want 503", rec.Code)
	}
}
