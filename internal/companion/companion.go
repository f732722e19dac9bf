// internal/companion/companion.go

// Package companion maps meal progress onto the virtual dog's mood and the
// encouragement shown to the user.
package companion

import "math/rand/v2"

const (
	VisualExcited = "excited"
	VisualPlaying = "playing"
	VisualWalking = "walking"
	VisualResting = "resting"
)

// State is the dog's animation state.
type State struct {
	Happiness   int
	Activity    int
	VisualState string
}

// StateFor returns the companion state for a capped progress value.
func StateFor(progress float64) State {
	switch {
	case progress >= 80:
		return State{Happiness: 10, Activity: 10, VisualState: VisualExcited}
	case progress >= 60:
		return State{Happiness: 8, Activity: 8, VisualState: VisualPlaying}
	case progress >= 40:
		return State{Happiness: 7, Activity: 6, VisualState: VisualWalking}
	case progress >= 20:
		return State{Happiness: 6, Activity: 5, VisualState: VisualWalking}
	default:
		return State{Happiness: 5, Activity: 4, VisualState: VisualResting}
	}
}

var messageBands = []struct {
	min      float64
	messages []string
}{
	{80, []string{
		"Your pup is so energetic! You're doing amazing! 🐕✨",
		"Look how happy your dog is! Great job nourishing yourself! 🌟",
		"Your dog is bouncing with joy! Wonderful progress! 💫",
	}},
	{50, []string{
		"Your pup is getting more playful! Keep going at your pace. 💛",
		"Nice progress! Your dog loves spending time with you. 🐾",
		"Your dog's tail is wagging! You're doing great! 🤗",
	}},
	{20, []string{
		"Every bite counts! Your pup believes in you. 💕",
		"Take your time - your dog is here with you. 🌸",
		"Your pup is by your side. You've got this! 💙",
	}},
	{0, []string{
		"Your pup is here, supporting you. Take it one bite at a time. 🤗",
		"No pressure - your dog loves you no matter what. 💕",
		"Your pup is resting peacefully with you. You're safe. 🌟",
	}},
}

// Messenger picks an encouraging message for a progress value.
type Messenger struct {
	choose func(n int) int
}

// NewMessenger uses choose to pick an index in [0, n). A nil choose picks
// uniformly at random.
func NewMessenger(choose func(n int) int) *Messenger {
	if choose == nil {
		choose = rand.IntN
	}
	return &Messenger{choose: choose}
}

func (m *Messenger) Message(progress float64) string {
	for _, band := range messageBands {
		if progress >= band.min {
			return band.messages[m.choose(len(band.messages))]
		}
	}
	last := messageBands[len(messageBands)-1].messages
	return last[m.choose(len(last))]
}
