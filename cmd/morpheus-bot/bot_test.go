package main

import "testing"

func TestDerivePushURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base string
		want string
	}{
		{"http://api-gateway:3001", "ws://api-gateway:3001/push"},
		{"http://api-gateway:3001/", "ws://api-gateway:3001/push"},
		{"https://api.example.com/v1", "wss://api.example.com/v1/push"},
		{"wss://api.example.com", "wss://api.example.com/push"},
	}
	for _, tc := range cases {
		got, err := derivePushURL(tc.base)
		if err != nil {
			t.Fatalf("derivePushURL(%q) error = %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("derivePushURL(%q) mismatch: got %q want %q", tc.base, got, tc.want)
		}
	}

	if _, err := derivePushURL("ftp://example.com"); err == nil {
		t.Fatalf("unsupported scheme accepted")
	}
}
