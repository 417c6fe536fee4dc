package config

import (
	"testing"
	"time"
)

func TestNewHTTPClients_Timeouts(t *testing.T) {
	clients := NewHTTPClients()

	if clients.Poll.Timeout != 10*time.Second {
		t.Errorf("Poll timeout = %v, want 10s", clients.Poll.Timeout)
	}
	if clients.Upload.Timeout != 600*time.Second {
		t.Errorf("Upload timeout = %v, want 600s", clients.Upload.Timeout)
	}
	if clients.Health.Timeout != 30*time.Second {
		t.Errorf("Health timeout = %v, want 30s", clients.Health.Timeout)
	}
}
