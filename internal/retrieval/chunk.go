package retrieval

import "strings"

// Chunking defaults, in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// sentence-ending runes chunk boundaries prefer to land after.
const sentenceEnders = "。！？!?.\n"

// Chunk splits text into overlapping pieces of at most size runes,
// preferring to break just after a sentence ender in the back half of a
// chunk. size <= 0 and negative overlap select the defaults; overlap is
// clamped below size.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// breakPoint scans backward from end toward the middle of the chunk for
// a sentence ender and breaks just after it. Falls back to end when the
// chunk has no ender in that range.
func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end - 1; i > floor; i-- {
		if strings.ContainsRune(sentenceEnders, runes[i]) {
			return i + 1
		}
	}
	return end
}
