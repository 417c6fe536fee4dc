package bodyfetcher

import (
	"testing"

	"github.com/wptagent/agent/types"
)

func TestSelectRequests_AllBodiesFiltersEligibleMimeTypes(t *testing.T) {
	job := &types.Job{AllBodies: true}
	result := &types.CanonicalResult{Requests: []types.Request{
		{ID: "1", MimeType: "text/html"},
		{ID: "2", MimeType: "image/png"},
		{ID: "3", MimeType: "application/json; charset=utf-8"},
		{ID: "4", MimeType: "text/javascript"},
	}}

	selected := SelectRequests(job, result)
	if len(selected) != 3 {
		t.Fatalf("expected 3 eligible requests, got %d", len(selected))
	}
	for _, req := range selected {
		if req.ID == "2" {
			t.Errorf("image/png should not be selected")
		}
	}
}

func TestSelectRequests_HTMLBodySelectsOnlyBasePage(t *testing.T) {
	job := &types.Job{HTMLBody: true}
	result := &types.CanonicalResult{Requests: []types.Request{
		{ID: "1", MimeType: "text/html", IsBasePage: true},
		{ID: "2", MimeType: "text/html", IsBasePage: false},
	}}

	selected := SelectRequests(job, result)
	if len(selected) != 1 || selected[0].ID != "1" {
		t.Fatalf("expected only the base page request, got %+v", selected)
	}
}

func TestSelectRequests_NoFlagsSelectsNothing(t *testing.T) {
	job := &types.Job{}
	result := &types.CanonicalResult{Requests: []types.Request{
		{ID: "1", MimeType: "text/html", IsBasePage: true},
	}}

	if selected := SelectRequests(job, result); selected != nil {
		t.Fatalf("expected no selections when neither flag is set, got %+v", selected)
	}
}

func TestIsEligibleMime(t *testing.T) {
	cases := map[string]bool{
		"text/html":                true,
		"text/html; charset=utf-8": true,
		"application/json":         true,
		"application/javascript":   true,
		"image/png":                false,
		"":                         false,
		"video/mp4":                false,
	}
	for mimeType, want := range cases {
		if got := isEligibleMime(mimeType); got != want {
			t.Errorf("isEligibleMime(%q) = %v, want %v", mimeType, got, want)
		}
	}
}

func TestToFetchRequests_ParsesHeaderLines(t *testing.T) {
	selected := []types.Request{
		{ID: "1", FullURL: "http://x/a", RequestHeaders: []string{"Accept: text/html", "X-Custom:  value "}},
		{ID: "2", FullURL: "http://x/b"},
	}

	out := ToFetchRequests(selected)
	if len(out) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(out))
	}
	if out[0].RequestID != "1" || out[0].URL != "http://x/a" {
		t.Fatalf("unexpected first request: %+v", out[0])
	}
	if out[0].Headers["Accept"] != "text/html" || out[0].Headers["X-Custom"] != "value" {
		t.Fatalf("unexpected parsed headers: %+v", out[0].Headers)
	}
	if out[1].Headers != nil {
		t.Errorf("expected nil headers for request with none captured, got %+v", out[1].Headers)
	}
}
