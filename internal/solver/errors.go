package solver

import "fmt"

// UnsupportedChallengeError is returned when a prompt matches none of the
// known challenge kinds.
type UnsupportedChallengeError struct {
	Prompt string
}

func (e *UnsupportedChallengeError) Error() string {
	return fmt.Sprintf("unsupported challenge: %q", e.Prompt)
}
