// Package state holds the meeting list state machine. Reduce is a pure
// function over an explicit action union; Store wraps it for concurrent use.
package state

import (
	"sync"
	"time"

	"presensi/internal/meeting"
)

// Meetings mirrors one screen's view of the meeting collection.
type Meetings struct {
	Items   []meeting.Meeting
	Loading bool
	Err     error
}

// Action is implemented by every event that changes Meetings.
type Action interface{ isAction() }

type (
	// RequestStarted marks any create, fetch, update or delete in flight.
	RequestStarted struct{}
	// RequestFailed ends the in-flight request with an error.
	RequestFailed struct{ Err error }

	MeetingsFetched struct{ Items []meeting.Meeting }
	MeetingCreated  struct{ Meeting meeting.Meeting }
	MeetingUpdated  struct{ Meeting meeting.Meeting }
	MeetingDeleted  struct{ ID int64 }

	// AttendanceUpdated replaces one attendee's check-in, check-out and status.
	AttendanceUpdated struct {
		MeetingID int64
		StudentID int64
		CheckIn   *time.Time
		CheckOut  *time.Time
		Status    meeting.AttendanceStatus
	}
)

func (RequestStarted) isAction()    {}
func (RequestFailed) isAction()     {}
func (MeetingsFetched) isAction()   {}
func (MeetingCreated) isAction()    {}
func (MeetingUpdated) isAction()    {}
func (MeetingDeleted) isAction()    {}
func (AttendanceUpdated) isAction() {}

// Reduce returns the state after applying a. The input state is not mutated;
// slices are copied before any change.
func Reduce(s Meetings, a Action) Meetings {
	switch a := a.(type) {
	case RequestStarted:
		s.Loading = true
		s.Err = nil
	case RequestFailed:
		s.Loading = false
		s.Err = a.Err
	case MeetingsFetched:
		s.Loading = false
		s.Items = append([]meeting.Meeting(nil), a.Items...)
	case MeetingCreated:
		s.Loading = false
		items := make([]meeting.Meeting, len(s.Items), len(s.Items)+1)
		copy(items, s.Items)
		s.Items = append(items, a.Meeting)
	case MeetingUpdated:
		s.Loading = false
		if i := indexOf(s.Items, a.Meeting.ID); i >= 0 {
			s.Items = cloneItems(s.Items)
			s.Items[i] = a.Meeting
		}
	case MeetingDeleted:
		s.Loading = false
		items := make([]meeting.Meeting, 0, len(s.Items))
		for _, m := range s.Items {
			if m.ID != a.ID {
				items = append(items, m)
			}
		}
		s.Items = items
	case AttendanceUpdated:
		s.Loading = false
		i := indexOf(s.Items, a.MeetingID)
		if i < 0 {
			break
		}
		m := s.Items[i]
		for j, att := range m.Attendees {
			if att.StudentID != a.StudentID {
				continue
			}
			attendees := append([]meeting.Attendee(nil), m.Attendees...)
			attendees[j] = meeting.Attendee{
				StudentID: a.StudentID,
				Status:    a.Status,
				CheckIn:   a.CheckIn,
				CheckOut:  a.CheckOut,
			}
			m.Attendees = attendees
			s.Items = cloneItems(s.Items)
			s.Items[i] = m
			break
		}
	}
	return s
}

func indexOf(items []meeting.Meeting, id int64) int {
	for i, m := range items {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []meeting.Meeting) []meeting.Meeting {
	return append([]meeting.Meeting(nil), items...)
}

// Store serializes dispatches and notifies subscribers with each new state.
type Store struct {
	mu       sync.RWMutex
	state    Meetings
	watchers []func(Meetings)
}

// NewStore creates a store starting from the zero state.
func NewStore() *Store { return &Store{} }

// Dispatch applies a and returns the resulting state.
func (s *Store) Dispatch(a Action) Meetings {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state
	watchers := append(([]func(Meetings))(nil), s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		w(next)
	}
	return next
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Meetings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called after every dispatch.
func (s *Store) Subscribe(fn func(Meetings)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}
