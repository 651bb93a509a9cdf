// Package batch chunks pending work into quota-sized groups so one
// sweep never exceeds the generation service or gateway rate limits.
// The chunk size is a configuration constant; callers pick one that
// stays under known quotas.
package batch

// Chunk partitions items into groups of at most size elements,
// preserving order. The final chunk may be smaller. A non-positive
// size yields a single chunk with everything in it.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
