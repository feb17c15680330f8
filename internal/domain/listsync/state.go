package listsync

import (
	"time"

	"github.com/okian/credash/internal/domain/model"
)

// Status is the health of the local list.
type Status int

// Sync statuses. The list survives every transition.
const (
	// StatusConnecting holds until the first refresh completes.
	StatusConnecting Status = iota
	// StatusSynced means the newest completed refresh succeeded.
	StatusSynced
	// StatusDegraded means the newest completed refresh failed; records are stale.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSynced:
		return "synced"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// PushState tracks the push channel: Disconnected -> Connecting -> Connected -> Disconnected.
type PushState int

// Push channel states.
const (
	PushDisconnected PushState = iota
	PushConnecting
	PushConnected
)

func (p PushState) String() string {
	switch p {
	case PushConnecting:
		return "connecting"
	case PushConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// State is a point-in-time copy of the sync.
type State struct {
	Status Status
	// Records holds at most one record per ScoreID, ordered by ScoreID.
	Records []model.ScoreRecord
	// LastSynced is when the applied refresh completed.
	LastSynced time.Time
	// LastRefreshStartedAt is when the most recent refresh was issued.
	LastRefreshStartedAt time.Time
	// LastError is set while Degraded.
	LastError error
	Push      PushState
}
