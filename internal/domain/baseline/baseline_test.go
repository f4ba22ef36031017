package baseline

import (
	"testing"
	"time"
)

func TestDuration_MapsEachWindow(t *testing.T) {
	cases := map[WindowSize]time.Duration{
		Window1h:  time.Hour,
		Window24h: 24 * time.Hour,
		Window7d:  7 * 24 * time.Hour,
	}
	for window, want := range cases {
		if got := window.Duration(); got != want {
			t.Errorf("%s.Duration() = %s, want %s", window, got, want)
		}
	}
}

func TestDuration_UnknownWindowFallsBackTo24h(t *testing.T) {
	if got := WindowSize("bogus").Duration(); got != 24*time.Hour {
		t.Errorf("unknown window duration = %s, want 24h fallback", got)
	}
}
