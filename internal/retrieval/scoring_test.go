package retrieval

import "testing"

// TestMaxSim verifies the late-interaction score on hand-computed cases.
func TestMaxSim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query [][]float32
		page  [][]float32
		want  float32
	}{
		{
			name:  "single vectors",
			query: [][]float32{{1, 0}},
			page:  [][]float32{{0.5, 0.5}},
			want:  0.5,
		},
		{
			name:  "picks max per query vector",
			query: [][]float32{{1, 0}},
			page:  [][]float32{{0.2, 0}, {0.9, 0}, {0.4, 0}},
			want:  0.9,
		},
		{
			name:  "sums over query vectors",
			query: [][]float32{{1, 0}, {0, 1}},
			page:  [][]float32{{0.5, 0}, {0, 0.25}},
			want:  0.75,
		},
		{
			name:  "negative similarities still pick max",
			query: [][]float32{{1}},
			page:  [][]float32{{-3}, {-1}, {-2}},
			want:  -1,
		},
		{
			name:  "empty page scores zero",
			query: [][]float32{{1, 2}},
			page:  [][]float32{},
			want:  0,
		},
		{
			name:  "empty query scores zero",
			query: [][]float32{},
			page:  [][]float32{{1, 2}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := maxSim(tt.query, tt.page); got != tt.want {
				t.Errorf("maxSim() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDot verifies the dot product including the mismatched-length guard.
func TestDot(t *testing.T) {
	t.Parallel()

	if got := dot([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("dot = %v, want 32", got)
	}
	if got := dot([]float32{1, 2, 3}, []float32{2}); got != 2 {
		t.Errorf("dot with mismatched lengths = %v, want 2", got)
	}
}
