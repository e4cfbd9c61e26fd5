package roster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChunkLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		limit int
		want  []string
	}{
		{
			name:  "no lines",
			lines: nil,
			limit: 10,
			want:  nil,
		},
		{
			name:  "everything fits in one chunk",
			lines: []string{"@alice", "@bob"},
			limit: 20,
			want:  []string{"@alice\n@bob"},
		},
		{
			name:  "joined length exactly at limit stays together",
			lines: []string{"@alice", "@bob"},
			limit: 11,
			want:  []string{"@alice\n@bob"},
		},
		{
			name:  "one over the limit splits",
			lines: []string{"@alice", "@bob"},
			limit: 10,
			want:  []string{"@alice", "@bob"},
		},
		{
			name:  "greedy packing preserves order",
			lines: []string{"@alice", "@bob", "@carol", "@dave"},
			limit: 12,
			want:  []string{"@alice\n@bob", "@carol\n@dave"},
		},
		{
			name:  "oversize line gets its own chunk",
			lines: []string{"@a", "@averyveryveryverylonghandle", "@b"},
			limit: 8,
			want:  []string{"@a", "@averyveryveryverylonghandle", "@b"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := chunkLines(testCase.lines, testCase.limit)
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
