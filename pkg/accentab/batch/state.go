package batch

import "github.com/himanishpuri/AccentAB/pkg/models"

// State is a stage of the generation state machine.
type State int

const (
	Initializing State = iota
	PartitioningPools
	GeneratingRows
	Shuffling
	Persisted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case PartitioningPools:
		return "partitioning-pools"
	case GeneratingRows:
		return "generating-rows"
	case Shuffling:
		return "shuffling"
	case Persisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Transition records entering a state. Table is empty for the shared stages.
type Transition struct {
	Table models.Table
	State State
}
