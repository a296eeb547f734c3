package token

import "fmt"

// SyncKind enumerates the states of a SyncState.
type SyncKind int

const (
	KindSyncing SyncKind = iota
	KindSynced
	KindNotSynced
)

func (k SyncKind) String() string {
	switch k {
	case KindSynced:
		return "synced"
	case KindNotSynced:
		return "not_synced"
	default:
		return "syncing"
	}
}

// SyncState tells whether a cached view is up to date. The zero value is
// Syncing with unknown progress.
type SyncState struct {
	Kind SyncKind
	// Progress is in [0, 1] when known. Only meaningful for KindSyncing.
	Progress *float64
	// Err is set for KindNotSynced.
	Err error
}

// Syncing returns a syncing state. progress may be nil.
func Syncing(progress *float64) SyncState {
	return SyncState{Kind: KindSyncing, Progress: progress}
}

// Synced returns the synced state.
func Synced() SyncState {
	return SyncState{Kind: KindSynced}
}

// NotSynced returns a failed state carrying err.
func NotSynced(err error) SyncState {
	return SyncState{Kind: KindNotSynced, Err: err}
}

// Equal compares kind, progress value and error message.
func (s SyncState) Equal(o SyncState) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindSyncing:
		if s.Progress == nil || o.Progress == nil {
			return s.Progress == nil && o.Progress == nil
		}
		return *s.Progress == *o.Progress
	case KindNotSynced:
		return errString(s.Err) == errString(o.Err)
	default:
		return true
	}
}

func (s SyncState) String() string {
	switch s.Kind {
	case KindSyncing:
		if s.Progress != nil {
			return fmt.Sprintf("syncing(%.2f)", *s.Progress)
		}
		return "syncing"
	case KindNotSynced:
		return fmt.Sprintf("not_synced(%s)", errString(s.Err))
	default:
		return s.Kind.String()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
