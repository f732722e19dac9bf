package companion_test

import (
	"strings"
	"testing"

	"meal-companion/internal/companion"
)

func TestStateFor(t *testing.T) {
	tests := []struct {
		progress float64
		want     companion.State
	}{
		{100, companion.State{Happiness: 10, Activity: 10, VisualState: "excited"}},
		{80, companion.State{Happiness: 10, Activity: 10, VisualState: "excited"}},
		{79.9, companion.State{Happiness: 8, Activity: 8, VisualState: "playing"}},
		{60, companion.State{Happiness: 8, Activity: 8, VisualState: "playing"}},
		{40, companion.State{Happiness: 7, Activity: 6, VisualState: "walking"}},
		{20, companion.State{Happiness: 6, Activity: 5, VisualState: "walking"}},
		{19.99, companion.State{Happiness: 5, Activity: 4, VisualState: "resting"}},
		{0, companion.State{Happiness: 5, Activity: 4, VisualState: "resting"}},
	}
	for _, tt := range tests {
		if got := companion.StateFor(tt.progress); got != tt.want {
			t.Errorf("StateFor(%v) = %+v, want %+v", tt.progress, got, tt.want)
		}
	}
}

func TestMessenger_Message(t *testing.T) {
	first := companion.NewMessenger(func(int) int { return 0 })

	tests := []struct {
		progress float64
		contains string
	}{
		{95, "so energetic"},
		{50, "more playful"},
		{20, "Every bite counts"},
		{5, "one bite at a time"},
		{-1, "one bite at a time"},
	}
	for _, tt := range tests {
		if got := first.Message(tt.progress); !strings.Contains(got, tt.contains) {
			t.Errorf("Message(%v) = %q, want it to contain %q", tt.progress, got, tt.contains)
		}
	}
}

func TestMessenger_ChoosesWithinBand(t *testing.T) {
	var gotN int
	m := companion.NewMessenger(func(n int) int { gotN = n; return n - 1 })
	if got := m.Message(85); !strings.Contains(got, "bouncing with joy") {
		t.Errorf("Message() = %q", got)
	}
	if gotN != 3 {
		t.Errorf("chooser called with n = %d, want 3", gotN)
	}

	random := companion.NewMessenger(nil)
	for range 20 {
		if random.Message(30) == "" {
			t.Fatal("Message() returned empty string")
		}
	}
}
