package domain

import (
	"fmt"
	"time"
)

// Direction is the decision an actor made on a target.
type Direction string

const (
	// DirectionLike is a right swipe.
	DirectionLike Direction = "like"
	// DirectionDislike is a left swipe.
	DirectionDislike Direction = "dislike"
	// DirectionSuperlike is an emphasized like.
	DirectionSuperlike Direction = "superlike"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionLike, DirectionDislike, DirectionSuperlike:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
	}
}

// Interaction is one append-only swipe decision. (ActorID, TargetID) is unique.
type Interaction struct {
	ActorID   string
	TargetID  string
	Direction Direction
	Timestamp time.Time
}
