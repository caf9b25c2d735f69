package batch

import "iter"

// Chunk lazily splits items into consecutive groups of at most size elements,
// yielding each group with its zero-based index. Only the last group may be
// shorter. Groups share the backing array of items. Size < 1 is treated as 1.
func Chunk[T any](items []T, size int) iter.Seq2[int, []T] {
	if size < 1 {
		size = 1
	}
	return func(yield func(int, []T) bool) {
		for i, start := 0, 0; start < len(items); i, start = i+1, start+size {
			end := min(start+size, len(items))
			if !yield(i, items[start:end:end]) {
				return
			}
		}
	}
}

// Count returns how many groups Chunk yields for n items.
func Count(n, size int) int {
	if size < 1 {
		size = 1
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
