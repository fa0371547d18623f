package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheck_ReportsAccessibleSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><title>Maypole</title></html>"))
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL, []string{"Maypole", "missing-marker"})
	result := checker.Check(context.Background())

	if !result.Accessible {
		t.Fatalf("expected site to be accessible: %+v", result)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.Status)
	}
	if !result.Checks["Maypole"] {
		t.Fatalf("expected Maypole check to pass")
	}
	if result.Checks["missing-marker"] {
		t.Fatalf("expected missing-marker check to fail")
	}
	if result.URL != srv.URL {
		t.Fatalf("result should echo the checked URL")
	}
	if result.Timestamp.IsZero() {
		t.Fatalf("result should carry a timestamp")
	}
}

func TestCheck_ReportsUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	checker := NewChecker(srv.URL, []string{"Maypole"})
	result := checker.Check(context.Background())

	if result.Accessible {
		t.Fatalf("expected unreachable site to be reported inaccessible")
	}
	if result.Content == "" {
		t.Fatalf("expected the fetch error to be surfaced in content")
	}
}

func TestCheck_TruncatesContent(t *testing.T) {
	large := make([]byte, 2000)
	for i := range large {
		large[i] = 'a'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(large)
	}))
	defer srv.Close()

	checker := NewChecker(srv.URL, nil)
	result := checker.Check(context.Background())

	if len(result.Content) != contentSnippetLen {
		t.Fatalf("expected content truncated to %d, got %d", contentSnippetLen, len(result.Content))
	}
}
