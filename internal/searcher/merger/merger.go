// Package merger selects the best results from several result lists
// without sorting all of them.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// TopK returns the limit best results across lists, best first. Duplicates
// (same document and anchor) are collapsed before selection.
func TopK(lists [][]ranker.Result, limit int) []ranker.Result {
	if limit <= 0 {
		limit = 10
	}
	var all []ranker.Result
	for _, l := range lists {
		all = append(all, l...)
	}
	all = ranker.Dedupe(all)

	h := &resultHeap{}
	heap.Init(h)
	for _, r := range all {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]ranker.Result, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.Result)
	}
	return result
}

// resultHeap keeps the worst result on top so it can be evicted.
type resultHeap []ranker.Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	return ranker.Less(h[j], h[i])
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.Result))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
