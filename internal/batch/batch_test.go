package batch

import "testing"

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		items     []int
		size      int
		wantLens  []int
	}{
		{"even split", []int{1, 2, 3, 4}, 2, []int{2, 2}},
		{"short tail", []int{1, 2, 3, 4, 5}, 2, []int{2, 2, 1}},
		{"size larger than input", []int{1, 2}, 10, []int{2}},
		{"size one", []int{1, 2, 3}, 1, []int{1, 1, 1}},
		{"zero size falls back to one chunk", []int{1, 2, 3}, 0, []int{3}},
		{"empty input", nil, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.items, tt.size)
			if len(got) != len(tt.wantLens) {
				t.Fatalf("Chunk() produced %d chunks, want %d", len(got), len(tt.wantLens))
			}

			var flat []int
			for i, c := range got {
				if len(c) != tt.wantLens[i] {
					t.Errorf("chunk %d len = %d, want %d", i, len(c), tt.wantLens[i])
				}
				flat = append(flat, c...)
			}

			// Total count and order preserved
			if len(flat) != len(tt.items) {
				t.Fatalf("flattened len = %d, want %d", len(flat), len(tt.items))
			}
			for i := range flat {
				if flat[i] != tt.items[i] {
					t.Errorf("flattened[%d] = %d, want %d", i, flat[i], tt.items[i])
				}
			}
		})
	}
}

func TestChunkCeilCount(t *testing.T) {
	for n := 1; n <= 10; n++ {
		items := make([]int, n)
		got := Chunk(items, 3)
		want := (n + 2) / 3
		if len(got) != want {
			t.Errorf("Chunk(len %d, 3) produced %d chunks, want %d", n, len(got), want)
		}
	}
}
