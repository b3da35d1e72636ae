package exhibit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/pagination"
)

// State is the lifecycle phase of the current session.
type State string

const (
	// Idle means no query has been started.
	Idle State = "idle"

	// QueryInFlight means the summary fetch is outstanding.
	QueryInFlight State = "query_in_flight"

	// GroupInFlight means detail fetches of the current group are outstanding.
	GroupInFlight State = "group_in_flight"

	// GroupReady means the current group landed and more groups remain.
	GroupReady State = "group_ready"

	// AllGroupsLoaded means every group landed, or the exhibit is empty.
	AllGroupsLoaded State = "all_groups_loaded"

	// Failed means the summary fetch failed. It behaves like Idle.
	Failed State = "failed"
)

// Snapshot is a point-in-time copy of the orchestrator state.
type Snapshot struct {
	State          State
	Query          string
	CurrentGroup   int
	NumberOfGroups int
	InFlight       int
	GroupReady     bool
	Items          []client.Artifact
	Err            error
}

// session is one query's fetch state. It is replaced on each new query and
// only touched on the actor goroutine.
type session struct {
	id    uuid.UUID
	query string

	// ctx is the orchestrator's context. Replacing a session does not
	// cancel its fetches; their results are dropped by id.
	ctx context.Context

	groups         pagination.GroupMap
	currentGroup   int
	numberOfGroups int

	summaryInFlight bool
	groupInFlight   bool
	groupReady      bool
	groupStarted    time.Time

	// position in group -> object id
	inFlight map[int]int
	results  []*client.Artifact

	err error
}

func newSession(parent context.Context, query string) *session {
	return &session{
		id:              uuid.New(),
		query:           query,
		ctx:             parent,
		summaryInFlight: true,
	}
}

func (s *session) state() State {
	switch {
	case s.summaryInFlight:
		return QueryInFlight
	case s.err != nil:
		return Failed
	case s.groupInFlight:
		return GroupInFlight
	case s.numberOfGroups == 0:
		return AllGroupsLoaded
	case s.groupReady && s.currentGroup >= s.numberOfGroups:
		return AllGroupsLoaded
	case s.groupReady:
		return GroupReady
	default:
		return Idle
	}
}
