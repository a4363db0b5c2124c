package utils

import "testing"

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{
			name:     "both set accumulate",
			existing: NewLabel("ml", "rank"),
			incoming: NewLabel("boost", "rule"),
			want:     Label{Value: "ml|boost", Source: "rank,rule"},
		},
		{
			name:     "empty existing yields incoming",
			existing: Label{},
			incoming: NewLabel("heuristic", "rank"),
			want:     NewLabel("heuristic", "rank"),
		},
		{
			name:     "empty incoming yields existing",
			existing: NewLabel("heuristic", "rank"),
			incoming: Label{},
			want:     NewLabel("heuristic", "rank"),
		},
		{
			name:     "missing incoming source keeps existing source",
			existing: NewLabel("a", "rank"),
			incoming: NewLabel("b", ""),
			want:     Label{Value: "a|b", Source: "rank"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel = %+v, want %+v", got, tt.want)
			}
		})
	}
}
