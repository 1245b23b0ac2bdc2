package syncengine_test

import (
	"fmt"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/syncengine"
)

func execItems(sizes ...int64) []syncengine.ExecItem {
	items := make([]syncengine.ExecItem, 0, len(sizes))
	for i, size := range sizes {
		items = append(items, syncengine.ExecItem{RowID: fmt.Sprint(i), Path: fmt.Sprintf("/ws/f%d", i), Size: size})
	}

	return items
}

func batchIDs(batches [][]syncengine.ExecItem) [][]string {
	out := make([][]string, 0, len(batches))
	for _, batch := range batches {
		ids := make([]string, 0, len(batch))
		for _, item := range batch {
			ids = append(ids, item.RowID)
		}

		out = append(out, ids)
	}

	return out
}

func TestBatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sizes       []int64
		parallelism int
		threshold   int64
		want        [][]string
	}{
		{name: "empty", parallelism: 4, threshold: 100, want: [][]string{}},
		{
			name: "splits evenly", sizes: []int64{1, 1, 1, 1, 1, 1}, parallelism: 3, threshold: 100,
			want: [][]string{{"0", "1"}, {"2", "3"}, {"4", "5"}},
		},
		{
			name: "remainder goes last", sizes: []int64{1, 1, 1, 1, 1}, parallelism: 2, threshold: 100,
			want: [][]string{{"0", "1", "2"}, {"3", "4"}},
		},
		{
			name: "fewer items than workers", sizes: []int64{1, 1}, parallelism: 8, threshold: 100,
			want: [][]string{{"0"}, {"1"}},
		},
		{
			name: "large files get their own batch", sizes: []int64{1, 500, 1, 1}, parallelism: 1, threshold: 100,
			want: [][]string{{"1"}, {"0", "2", "3"}},
		},
		{
			name: "zero parallelism is one batch", sizes: []int64{1, 1, 1}, parallelism: 0, threshold: 100,
			want: [][]string{{"0", "1", "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			got := batchIDs(syncengine.Batches(execItems(tt.sizes...), tt.parallelism, tt.threshold))
			g.Expect(got).To(Equal(tt.want))
		})
	}
}

func TestBatchesKeepsEveryItemOnce(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	sizes := make([]int64, 37)
	for i := range sizes {
		sizes[i] = int64(i * 10)
	}

	seen := map[string]int{}
	for _, batch := range syncengine.Batches(execItems(sizes...), 5, 200) {
		for _, item := range batch {
			seen[item.RowID]++
		}
	}

	g.Expect(seen).To(HaveLen(37))

	for id, count := range seen {
		g.Expect(count).To(Equal(1), id)
	}
}
