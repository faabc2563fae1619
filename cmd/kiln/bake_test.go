// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"testing"
)

func TestNeedsRewatch(t *testing.T) {
	t.Parallel()

	r := recipeWithModel() // FilePath is /work/kilnfile.cue

	tests := []struct {
		name    string
		changed []string
		want    bool
	}{
		{"source edits only", []string{"agent/main.py", "shared/util.py"}, false},
		{"recipe edited", []string{"kilnfile.cue"}, true},
		{"recipe edited among sources", []string{"agent/main.py", "kilnfile.cue"}, true},
		{"similarly named source file", []string{"agent/kilnfile.cue.bak"}, false},
		{"empty change set", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := needsRewatch(r, tt.changed); got != tt.want {
				t.Errorf("needsRewatch(%v) = %v, want %v", tt.changed, got, tt.want)
			}
		})
	}
}
