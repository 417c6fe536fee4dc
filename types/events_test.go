package types

import "testing"

func TestStepEventType_IsTerminal(t *testing.T) {
	tests := []struct {
		eventType StepEventType
		want      bool
	}{
		{StepEventTaskComplete, true},
		{StepEventTaskError, true},
		{StepEventRequest, false},
		{StepEventArtifact, false},
		{StepEventCheckpoint, false},
		{StepEventLog, false},
		{StepEventProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			got := tt.eventType.IsTerminal()
			if got != tt.want {
				t.Errorf("StepEventType(%q).IsTerminal() = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}
