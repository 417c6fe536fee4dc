package dispatch

import "testing"

func TestParseJobDocument_Minimal(t *testing.T) {
	body := []byte(`{"test_id":"t1","signature":"sig1","url":"https://example.com","runs":1}`)
	job, err := parseJobDocument(body, "https://coordinator.example.com")
	if err != nil {
		t.Fatalf("parseJobDocument: %v", err)
	}
	if job.TestID != "t1" || job.Signature != "sig1" || job.URL != "https://example.com" {
		t.Errorf("got %+v", job)
	}
	if job.OriginURL != "https://coordinator.example.com" {
		t.Errorf("OriginURL = %q", job.OriginURL)
	}
	if job.CPUThrottle != 1.0 {
		t.Errorf("CPUThrottle = %v, want 1.0 default", job.CPUThrottle)
	}
}

func TestParseJobDocument_RunsDefaultsToOne(t *testing.T) {
	body := []byte(`{"test_id":"t1","signature":"sig1","url":"https://example.com","runs":0}`)
	job, err := parseJobDocument(body, "https://coordinator.example.com")
	if err != nil {
		t.Fatalf("parseJobDocument: %v", err)
	}
	if job.Runs != 1 {
		t.Errorf("Runs = %d, want 1", job.Runs)
	}
}

func TestParseJobDocument_MissingRequiredFieldsFails(t *testing.T) {
	body := []byte(`{"test_id":"","signature":"sig1"}`)
	if _, err := parseJobDocument(body, "https://coordinator.example.com"); err == nil {
		t.Error("expected validation error for empty test_id/url")
	}
}

func TestParseJobDocument_MalformedJSONFails(t *testing.T) {
	if _, err := parseJobDocument([]byte("not json"), "https://coordinator.example.com"); err == nil {
		t.Error("expected decode error")
	}
}

func TestParseJobDocument_Routing(t *testing.T) {
	body := []byte(`{"test_id":"t1","signature":"sig1","url":"https://example.com","runs":1,
		"routing":{"blob_bucket":"b","blob_path":"p","pubsub_retry_queue":"rq","pubsub_complete_queue":"cq"}}`)
	job, err := parseJobDocument(body, "https://coordinator.example.com")
	if err != nil {
		t.Fatalf("parseJobDocument: %v", err)
	}
	if !job.Routing.HasBlobTarget() {
		t.Error("expected blob target")
	}
	if job.Routing.PubsubRetryQueue != "rq" || job.Routing.PubsubCompleteQueue != "cq" {
		t.Errorf("got %+v", job.Routing)
	}
}
