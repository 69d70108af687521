package matchdex

import (
	"time"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// Profile is a user as stored, embedded and returned in batches.
type Profile = domain.Profile

// Batch is the result of a feed or search call.
type Batch = domain.RecommendationBatch

// BatchMetadata tells how a batch was produced, including degraded stages.
type BatchMetadata = domain.BatchMetadata

// Direction is a swipe decision.
type Direction string

// Swipe directions.
const (
	DirectionLike      Direction = "like"
	DirectionDislike   Direction = "dislike"
	DirectionSuperlike Direction = "superlike"
)

// Swipe is one recorded decision.
type Swipe struct {
	ActorID   string
	TargetID  string
	Direction Direction
	Timestamp time.Time
	// Duplicate is set when an earlier decision on the same target was kept and this one ignored.
	Duplicate bool
}

// UpsertResult reports what UpsertProfile wrote.
type UpsertResult struct {
	Profile Profile
	// Indexed is false when the embedder failed; the profile is then only
	// reachable through random sampling until it is upserted again.
	Indexed bool
}

func swipeFromDomain(in domain.Interaction, duplicate bool) Swipe {
	return Swipe{
		ActorID:   in.ActorID,
		TargetID:  in.TargetID,
		Direction: Direction(in.Direction),
		Timestamp: in.Timestamp,
		Duplicate: duplicate,
	}
}
