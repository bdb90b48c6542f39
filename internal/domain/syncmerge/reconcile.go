package syncmerge

import (
	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
)

// Snapshot is what one side holds for a user. Progress is nil when the side
// has no progress record at all.
type Snapshot struct {
	Progress *progress.Progress
	Notes    notes.Collection
}

// ProgressOrEmpty returns the side's progress, or the empty value when it
// has no record.
func (s Snapshot) ProgressOrEmpty() progress.Progress {
	if s.Progress == nil {
		return progress.Empty()
	}
	return *s.Progress
}

// Result is the outcome of reconciling a local snapshot with a remote one.
type Result struct {
	Progress progress.Progress
	Notes    notes.Collection

	// PushProgress and PushNotes tell the caller which remote writes are needed.
	PushProgress bool
	PushNotes    bool
}

// NeedsPush reports whether any remote write is needed.
func (r Result) NeedsPush() bool {
	return r.PushProgress || r.PushNotes
}

// Reconcile merges the remote snapshot into the local one and compares the
// merged result with what the remote already holds.
func Reconcile(local progress.Progress, localNotes notes.Collection, remote Snapshot) Result {
	merged := MergeProgress(local, remote.ProgressOrEmpty())
	mergedNotes := MergeNotes(localNotes, remote.Notes)

	return Result{
		Progress:     merged,
		Notes:        mergedNotes,
		PushProgress: HasProgressChanges(merged, remote.Progress),
		PushNotes:    HasNotesChanges(mergedNotes, remote.Notes),
	}
}
