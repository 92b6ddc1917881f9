package pages

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 403), 100},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(c.text), got, c.want)
		}
	}
}

func TestPaginateReassemblesContent(t *testing.T) {
	// Content with no newlines: snapping never applies, so concatenating
	// all pages must reproduce the input exactly.
	content := strings.Repeat("abcdefghij", 100) // 1000 chars, 250 tokens
	pageSize := 60                               // 240 chars per page

	_, first := Paginate(content, 1, pageSize)
	wantPages := (250 + pageSize - 1) / pageSize
	if first.TotalPages != wantPages {
		t.Fatalf("TotalPages = %d, want %d", first.TotalPages, wantPages)
	}

	var rebuilt strings.Builder
	for page := 1; page <= first.TotalPages; page++ {
		text, meta := Paginate(content, page, pageSize)
		rebuilt.WriteString(text)
		if meta.HasPrevious != (page > 1) {
			t.Errorf("page %d: HasPrevious = %v", page, meta.HasPrevious)
		}
		if meta.HasNext != (page < first.TotalPages) {
			t.Errorf("page %d: HasNext = %v", page, meta.HasNext)
		}
	}

	if rebuilt.String() != content {
		t.Errorf("reassembled content differs: got %d chars, want %d", rebuilt.Len(), len(content))
	}
}

func TestPaginateTokenCharConsistency(t *testing.T) {
	content := strings.Repeat("z", 1234)
	_, meta := Paginate(content, 1, 100)

	if meta.TotalTokens != len(content)/4 {
		t.Errorf("TotalTokens = %d, want %d", meta.TotalTokens, len(content)/4)
	}
	wantPages := (meta.TotalTokens + 99) / 100
	if meta.TotalPages != wantPages {
		t.Errorf("TotalPages = %d, want %d", meta.TotalPages, wantPages)
	}
	if meta.Limit != 400 {
		t.Errorf("Limit = %d, want 400 (page size 100 tokens * 4 chars)", meta.Limit)
	}
}

func TestPaginateNewlineSnap(t *testing.T) {
	// A newline in the last 20% of the slice pulls the boundary back.
	pageSize := 25 // charLimit 100
	content := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 100)

	text, meta := Paginate(content, 1, pageSize)
	if len(text) != 90 {
		t.Fatalf("page 1 length = %d, want 90 (snapped to newline)", len(text))
	}
	if !meta.HasNext {
		t.Error("expected HasNext after snapping")
	}
	if meta.Limit != 90 {
		t.Errorf("Limit = %d, want 90", meta.Limit)
	}
}

func TestPaginateNoSnapOnEarlyNewline(t *testing.T) {
	// A newline before the final 20% of the slice is not a snap target.
	pageSize := 25 // charLimit 100
	content := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 150)

	text, _ := Paginate(content, 1, pageSize)
	if len(text) != 100 {
		t.Errorf("page 1 length = %d, want full 100 chars", len(text))
	}
}

func TestPaginateClampsPage(t *testing.T) {
	content := strings.Repeat("x", 100) // 25 tokens, one page at size 100

	text, meta := Paginate(content, 99, 100)
	if meta.Page != 1 {
		t.Errorf("Page = %d, want clamped to 1", meta.Page)
	}
	if text != content {
		t.Error("expected full content on the only page")
	}

	_, meta = Paginate(content, 0, 100)
	if meta.Page != 1 {
		t.Errorf("Page = %d, want clamped to 1 from 0", meta.Page)
	}
}

func TestPaginateEmptyContent(t *testing.T) {
	text, meta := Paginate("", 1, 100)
	if text != "" {
		t.Errorf("expected empty page, got %q", text)
	}
	if meta.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1 for empty content", meta.TotalPages)
	}
	if meta.HasNext || meta.HasPrevious {
		t.Error("empty content has no neighboring pages")
	}
}
