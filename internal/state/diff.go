package state

import (
	"reflect"

	"presensi/internal/meeting"
)

// Diff returns the actions that turn the items in prev into next, matching
// meetings by ID. A meeting whose only change is in existing attendees yields
// one AttendanceUpdated per changed attendee; any other change replaces it.
//
// Lists with duplicate IDs cannot be matched, so they collapse into a single
// MeetingsFetched.
func Diff(prev, next []meeting.Meeting) []Action {
	old, ok := byID(prev)
	if !ok {
		return []Action{MeetingsFetched{Items: next}}
	}
	fresh, ok := byID(next)
	if !ok {
		return []Action{MeetingsFetched{Items: next}}
	}

	var actions []Action
	for _, m := range prev {
		if _, keep := fresh[m.ID]; !keep {
			actions = append(actions, MeetingDeleted{ID: m.ID})
		}
	}
	for _, m := range next {
		was, seen := old[m.ID]
		switch {
		case !seen:
			actions = append(actions, MeetingCreated{Meeting: m})
		case reflect.DeepEqual(was, m):
		default:
			if upd, ok := attendanceChanges(was, m); ok {
				actions = append(actions, upd...)
			} else {
				actions = append(actions, MeetingUpdated{Meeting: m})
			}
		}
	}
	return actions
}

func byID(items []meeting.Meeting) (map[int64]meeting.Meeting, bool) {
	out := make(map[int64]meeting.Meeting, len(items))
	for _, m := range items {
		if _, dup := out[m.ID]; dup {
			return nil, false
		}
		out[m.ID] = m
	}
	return out, true
}

// attendanceChanges reports the per-attendee updates between was and now, or
// false when anything besides existing attendees differs.
func attendanceChanges(was, now meeting.Meeting) ([]Action, bool) {
	if len(was.Attendees) != len(now.Attendees) {
		return nil, false
	}
	a, b := was, now
	a.Attendees, b.Attendees = nil, nil
	if !reflect.DeepEqual(a, b) {
		return nil, false
	}

	var out []Action
	for i, att := range now.Attendees {
		prev := was.Attendees[i]
		if prev.StudentID != att.StudentID {
			return nil, false
		}
		if reflect.DeepEqual(prev, att) {
			continue
		}
		out = append(out, AttendanceUpdated{
			MeetingID: now.ID,
			StudentID: att.StudentID,
			CheckIn:   att.CheckIn,
			CheckOut:  att.CheckOut,
			Status:    att.Status,
		})
	}
	return out, true
}
