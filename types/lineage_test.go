package types

import "testing"

func TestJobLineage_Validate(t *testing.T) {
	parent := "run-parent-001"

	tests := []struct {
		name    string
		lineage JobLineage
		wantErr bool
	}{
		{
			name:    "empty run_id",
			lineage: JobLineage{RunID: "", Attempt: 1},
			wantErr: true,
		},
		{
			name:    "attempt zero",
			lineage: JobLineage{RunID: "run-001", Attempt: 0},
			wantErr: true,
		},
		{
			name:    "initial attempt with parent_run_id",
			lineage: JobLineage{RunID: "run-001", Attempt: 1, ParentRunID: &parent},
			wantErr: true,
		},
		{
			name:    "retry attempt without parent_run_id",
			lineage: JobLineage{RunID: "run-001", Attempt: 2, ParentRunID: nil},
			wantErr: true,
		},
		{
			name:    "valid initial attempt",
			lineage: JobLineage{RunID: "run-001", Attempt: 1},
			wantErr: false,
		},
		{
			name:    "valid retry attempt",
			lineage: JobLineage{RunID: "run-002", Attempt: 2, ParentRunID: &parent},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lineage.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
