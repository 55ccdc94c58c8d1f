package core

import "testing"

func TestImportPhaseTerminal(t *testing.T) {
	tests := []struct {
		phase ImportPhase
		want  bool
	}{
		{PhaseIdle, false},
		{PhaseReading, false},
		{PhaseValidating, false},
		{PhaseImporting, false},
		{PhaseCompleted, true},
		{PhaseCancelled, true},
		{PhaseFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Terminal(); got != tt.want {
				t.Errorf("Terminal(%q) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}
