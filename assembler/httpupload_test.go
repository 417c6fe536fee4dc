package assembler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "result.zip")
	if err := os.WriteFile(path, []byte("fake zip"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestPostWorkDone_SuccessOnFirstOrigin(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	params := WorkDoneParams{Location: "loc1", PC: "host1", TestID: "t1", Run: 1, Done: true}
	err := PostWorkDone(context.Background(), srv.Client(), srv.URL, "", params, testArchive(t))
	if err != nil {
		t.Fatalf("PostWorkDone: %v", err)
	}
	if gotQuery == "" {
		t.Fatal("expected query string on request")
	}
}

func TestPostWorkDone_FallsBackOn5xx(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	var fallbackHit bool
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer fallback.Close()

	params := WorkDoneParams{Location: "loc1", PC: "host1", TestID: "t1", Run: 1}
	err := PostWorkDone(context.Background(), primary.Client(), primary.URL, fallback.URL, params, testArchive(t))
	if err != nil {
		t.Fatalf("PostWorkDone: %v", err)
	}
	if !fallbackHit {
		t.Error("expected fallback origin to be tried")
	}
}

func TestPostWorkDone_NoFallbackConfiguredFailsAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	params := WorkDoneParams{Location: "loc1", PC: "host1", TestID: "t1", Run: 1}
	err := PostWorkDone(context.Background(), srv.Client(), srv.URL, "", params, testArchive(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1+uploadRetries {
		t.Errorf("expected %d attempts, got %d", 1+uploadRetries, attempts)
	}
}

func Test4xxIsNonRetriable(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	params := WorkDoneParams{Location: "loc1", PC: "host1", TestID: "t1", Run: 1}
	_ = PostWorkDone(context.Background(), srv.Client(), srv.URL, "", params, testArchive(t))
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx, got %d", attempts)
	}
}
