package accounting_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bowlofstew/nimbus.io/pkg/accounting"
	"github.com/bowlofstew/nimbus.io/pkg/config"
)

func TestAddedPostsSignedReport(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := accounting.New(config.AccountingConfig{
		Endpoint:       server.URL,
		JWTSigningKey:  "test-signing-key-at-least-this-long",
		RequestTimeout: 2 * time.Second,
	})

	client.Added(context.Background(), 42, 1000, 4096)

	if gotPath != "/added" {
		t.Fatalf("expected POST /added, got %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("expected Bearer token, got %q", gotAuth)
	}
	if gotBody["collection_id"].(float64) != 42 || gotBody["bytes"].(float64) != 4096 {
		t.Fatalf("unexpected report body: %+v", gotBody)
	}
}

func TestReportOnClientErrorDoesNotRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := accounting.New(config.AccountingConfig{
		Endpoint:       server.URL,
		JWTSigningKey:  "test-signing-key-at-least-this-long",
		RequestTimeout: 2 * time.Second,
	})

	client.Removed(context.Background(), 1, 1, 1)

	if calls != 1 {
		t.Fatalf("expected exactly 1 call on a 4xx (permanent) error, got %d", calls)
	}
}

func TestReportWithNoEndpointIsANoop(t *testing.T) {
	client := accounting.New(config.AccountingConfig{RequestTimeout: time.Second})
	client.Retrieved(context.Background(), 1, 1, 1) // must not panic or block
}
