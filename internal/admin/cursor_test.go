package admin

import "testing"

func TestCursorNeverMovesBackwards(t *testing.T) {
	c := NewCursor("2024-12-25T10:00:00")
	steps := []struct {
		candidate string
		moved     bool
		want      string
	}{
		{"2024-12-25T09:00:00", false, "2024-12-25T10:00:00"},
		{"", false, "2024-12-25T10:00:00"},
		{"2024-12-25T10:00:00.5", true, "2024-12-25T10:00:00.5"},
		{"2024-12-25T10:00:00.25", false, "2024-12-25T10:00:00.5"},
		{"2024-12-26T00:00:00Z", true, "2024-12-26T00:00:00Z"},
	}
	for _, s := range steps {
		if moved := c.Advance(s.candidate); moved != s.moved {
			t.Fatalf("Advance(%q) moved=%v, want %v", s.candidate, moved, s.moved)
		}
		if c.Value() != s.want {
			t.Fatalf("after %q cursor is %q, want %q", s.candidate, c.Value(), s.want)
		}
	}
}

func TestEmptyCursorAcceptsAnything(t *testing.T) {
	c := NewCursor("")
	if !c.Advance("opaque-1") || c.Value() != "opaque-1" {
		t.Fatalf("empty cursor should advance")
	}
	if CompareTimestamps("opaque-2", "opaque-1") <= 0 {
		t.Fatalf("opaque values fall back to string order")
	}
}
