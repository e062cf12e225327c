// Package events provides a small synchronous pub-sub bus used by C3 (symbol
// universe subscriptions) and C8 (snapshot-change notifications).
package events

// Type identifies a kind of domain event.
type Type string

const (
	// SymbolAdded fires after a ticker is added to the universe.
	SymbolAdded Type = "SYMBOL_ADDED"
	// SymbolRemoved fires after a ticker is removed from the universe.
	SymbolRemoved Type = "SYMBOL_REMOVED"
	// SymbolUniverseReset fires after the universe is reset to its defaults.
	SymbolUniverseReset Type = "SYMBOL_UNIVERSE_RESET"
	// SnapshotRefreshed fires after C8 publishes a new snapshot.
	SnapshotRefreshed Type = "SNAPSHOT_REFRESHED"
	// RejectPersisted names a reject-decision event; no component in this
	// module emits it (C4 logs the decision instead).
	RejectPersisted Type = "REJECT_PERSISTED"
	// ScanStepCompleted names a C6 scanner-step event; no component in this
	// module emits it (C6 reports steps through its onStep callback).
	ScanStepCompleted Type = "SCAN_STEP_COMPLETED"
	// PipelinePhaseCompleted names a C10 phase event; no component in this
	// module emits it (C10 reports phases through its onPhase callback).
	PipelinePhaseCompleted Type = "PIPELINE_PHASE_COMPLETED"
)
