package pipeline

// State is a pipeline run's position in the identification state machine.
//
//	Idle -> Encoding -> Identifying || AwaitingRegistry -> Verifying
//	Verifying -> Verified -> PersistingImage -> PersistingRecord -> Done
//	Verifying -> Rejected
//	any non-terminal state -> Failed
type State int

const (
	StateIdle State = iota
	StateEncoding
	StateIdentifying
	StateAwaitingRegistry
	StateVerifying
	StateVerified
	StatePersistingImage
	StatePersistingRecord
	StateDone
	StateRejected
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateEncoding:         "encoding",
	StateIdentifying:      "identifying",
	StateAwaitingRegistry: "awaiting_registry",
	StateVerifying:        "verifying",
	StateVerified:         "verified",
	StatePersistingImage:  "persisting_image",
	StatePersistingRecord: "persisting_record",
	StateDone:             "done",
	StateRejected:         "rejected",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether a run in state s has finished.
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected || s == StateFailed
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
