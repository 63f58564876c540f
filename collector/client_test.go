package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientSendsIdentificationHeaders(t *testing.T) {
	var gotUserAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	body, err := client.get(context.Background(), server.URL, acceptXML)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if string(body) != "ok" {
		t.Errorf("Expected body ok, got %q", body)
	}
	if !strings.HasPrefix(gotUserAgent, "DataDetective/1.0") {
		t.Errorf("Expected DataDetective User-Agent, got %q", gotUserAgent)
	}
	if gotAccept != acceptXML {
		t.Errorf("Expected Accept %q, got %q", acceptXML, gotAccept)
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, false},
		{"bad gateway", http.StatusBadGateway, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			client := New(5 * time.Second)
			_, err := client.get(context.Background(), server.URL, acceptJSON)
			if err == nil {
				t.Fatalf("Expected error for HTTP %d", tt.code)
			}

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected StatusError, got %T: %v", err, err)
			}
			if statusErr.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, statusErr.Code)
			}

			// Classify with a fixed URL so the ephemeral test port
			// cannot collide with the status-code keywords.
			fixed := &StatusError{URL: "https://infocar.dgt.es/datex2", Code: tt.code, Hint: statusErr.Hint}
			if got := IsNetworkError(fixed); got != tt.retryable {
				t.Errorf("IsNetworkError for HTTP %d = %v, want %v", tt.code, got, tt.retryable)
			}
		})
	}
}

func TestClientDefaultTimeout(t *testing.T) {
	client := New(0)
	if client.http.Timeout != 60*time.Second {
		t.Errorf("Expected 60s default timeout, got %v", client.http.Timeout)
	}
}
