package countdown

import (
	"testing"
	"time"
)

func TestCountdownBeforeAndAfterExpiry(t *testing.T) {
	expiry, err := ParseExpiry("25/12/2024 10:30", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := New(expiry)

	if got := c.Tick(time.Date(2024, 12, 25, 10, 29, 5, 0, time.UTC)); got != "Time remaining: 0m 55s" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := c.Tick(time.Date(2024, 12, 25, 10, 31, 0, 0, time.UTC)); got != ExpiredText {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestCountdownStaysExpired(t *testing.T) {
	expiry := time.Date(2024, 12, 25, 10, 30, 0, 0, time.UTC)
	c := New(expiry)
	if got := c.Tick(expiry); got != ExpiredText {
		t.Fatalf("zero remaining should be expired, got %q", got)
	}
	// a clock stepping backwards does not revive it
	for _, now := range []time.Time{expiry.Add(-time.Hour), expiry.Add(time.Hour), expiry} {
		if got := c.Tick(now); got != ExpiredText || !c.Expired() {
			t.Fatalf("tick at %v gave %q", now, got)
		}
	}
}

func TestFormatDropsLeadingZeroUnits(t *testing.T) {
	cases := map[time.Duration]string{
		5 * time.Second:               "0m 5s",
		2*time.Minute + 3*time.Second: "2m 3s",
		time.Hour:                     "1h 0m 0s",
		3*time.Hour + 4*time.Minute + 5*time.Second: "3h 4m 5s",
		49*time.Hour + 30*time.Second:               "2d 1h 0m 30s",
		1500 * time.Millisecond:                     "0m 1s",
	}
	for d, want := range cases {
		if got := Format(d); got != want {
			t.Fatalf("Format(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestParseExpiryRejectsOtherFormats(t *testing.T) {
	for _, in := range []string{"2024-12-25 10:30", "25/12/2024", ""} {
		if _, err := ParseExpiry(in, time.UTC); err == nil {
			t.Fatalf("ParseExpiry(%q) should fail", in)
		}
	}
}
