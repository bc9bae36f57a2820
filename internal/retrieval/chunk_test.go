package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{
			name: "empty text",
			text: "",
		},
		{
			name: "whitespace only",
			text: "   \n\t  ",
			size: 100,
		},
		{
			name: "short text single chunk",
			text: "充电桩显示008故障时应检查网络连接。",
			size: 100,
			want: []string{"充电桩显示008故障时应检查网络连接。"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Chunk(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d: %q", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunk_LongTextBounds(t *testing.T) {
	t.Parallel()

	// 10 sentences of 30 runes each.
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString(strings.Repeat("场", 29))
		b.WriteString("。")
	}
	text := b.String()

	chunks := Chunk(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d has %d runes, over the size bound", i, n)
		}
	}

	// The tail of the text must survive chunking.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, strings.TrimSpace(last)) {
		t.Errorf("last chunk does not cover the end of the text: %q", last)
	}
}

func TestChunk_PrefersSentenceBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 70) + "。" + strings.Repeat("b", 70)
	chunks := Chunk(text, 100, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "。") {
		t.Errorf("first chunk should end at the sentence boundary, got %q", chunks[0])
	}
}

func TestChunk_Defaults(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("数据。", 400) // 1200 runes
	chunks := Chunk(text, 0, -1)
	if len(chunks) < 2 {
		t.Fatalf("default-size chunking should split 1200 runes, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultChunkSize {
			t.Errorf("chunk %d has %d runes, over default bound", i, n)
		}
	}
}
