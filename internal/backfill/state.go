package backfill

import "fmt"

// RunState is the lifecycle state of an orchestrator run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateAborted   RunState = "aborted"
)

// ChunkState is the lifecycle state of one chunk within a source.
type ChunkState string

const (
	ChunkPending   ChunkState = "pending"
	ChunkRunning   ChunkState = "running"
	ChunkRetrying  ChunkState = "retrying"
	ChunkSucceeded ChunkState = "succeeded"
	ChunkFailed    ChunkState = "failed"
)

var runTransitions = map[RunState][]RunState{
	StateIdle: {
		StateRunning,
	},
	StateRunning: {
		StateCompleted, // every source finished, possibly with chunk failures
		StateAborted,   // Abort, cancellation or a ledger write failure
	},
	// Finished runs may start again
	StateCompleted: {StateRunning},
	StateAborted:   {StateRunning},
}

var chunkTransitions = map[ChunkState][]ChunkState{
	ChunkPending: {ChunkRunning},
	ChunkRunning: {
		ChunkSucceeded,
		ChunkRetrying, // attempt failed, budget left
		ChunkFailed,   // attempt failed, budget exhausted, or ingest failed
	},
	ChunkRetrying: {
		ChunkSucceeded,
		ChunkRetrying,
		ChunkFailed,
	},
	ChunkSucceeded: {},
	ChunkFailed:    {},
}

// ValidateRunTransition checks if a run state transition is valid.
func ValidateRunTransition(from, to RunState) error {
	return validate(runTransitions, from, to)
}

// ValidateChunkTransition checks if a chunk state transition is valid.
func ValidateChunkTransition(from, to ChunkState) error {
	return validate(chunkTransitions, from, to)
}

func validate[S ~string](table map[S][]S, from, to S) error {
	allowed, exists := table[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}
