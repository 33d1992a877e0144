package sanitize

import "testing"

func TestTextStripsMarkup(t *testing.T) {
	cases := map[string]string{
		"<b>hello</b>":                "hello",
		"<script>alert(1)</script>ok": "ok",
		"fish &amp; chips":            "fish & chips",
		"5 < 6":                       "5 < 6",
		"  spaced  ":                  "spaced",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripControlKeepsNewlines(t *testing.T) {
	if got := stripControl("bell\x07\x1b[31mred\nnext"); got != "bell[31mred\nnext" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestNameCollapsesWhitespaceAndTruncates(t *testing.T) {
	if got := Name("  bob \n  smith "); got != "bob smith" {
		t.Fatalf("unexpected name %q", got)
	}
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	if got := Name(long); len([]rune(got)) != maxNameLen {
		t.Fatalf("expected truncation to %d, got %q", maxNameLen, got)
	}
}
