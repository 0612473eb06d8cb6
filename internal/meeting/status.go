package meeting

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the temporal state of a meeting relative to a reference instant.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Ended
)

var statusNames = map[Status]string{
	NotStarted: "not_started",
	InProgress: "in_progress",
	Ended:      "ended",
}

var statusLabels = map[Status]string{
	NotStarted: "Belum Dimulai",
	InProgress: "Sedang Berlangsung",
	Ended:      "Selesai",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Label is the display text shown on meeting cards.
func (s Status) Label() string { return statusLabels[s] }

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// DeriveStatus places now relative to the meeting window. Both ends of the
// window are inclusive. The window is built in now's location.
//
// A window whose end is not after its start is not rejected: the same
// comparisons apply, so such a meeting reads NotStarted before its start,
// Ended after its end, and InProgress only when now equals both.
func DeriveStatus(m Meeting, now time.Time) Status {
	start, end := m.Window(now.Location())
	switch {
	case now.Before(start):
		return NotStarted
	case now.After(end):
		return Ended
	}
	return InProgress
}

// Annotated pairs a meeting with its derived status.
type Annotated struct {
	Meeting
	Status      Status `json:"status"`
	StatusLabel string `json:"status_label"`
}

// Annotate derives the status of every meeting against one reference instant.
func Annotate(meetings []Meeting, now time.Time) []Annotated {
	out := make([]Annotated, 0, len(meetings))
	for _, m := range meetings {
		st := DeriveStatus(m, now)
		out = append(out, Annotated{Meeting: m, Status: st, StatusLabel: st.Label()})
	}
	return out
}

// AttendanceStatus is a student's recorded presence.
type AttendanceStatus string

const (
	Present AttendanceStatus = "present"
	Late    AttendanceStatus = "late"
	Absent  AttendanceStatus = "absent"
)

var attendanceAliases = map[string]AttendanceStatus{
	"present":     Present,
	"hadir":       Present,
	"late":        Late,
	"terlambat":   Late,
	"absent":      Absent,
	"tidak hadir": Absent,
	"belum hadir": Absent,
	"alpha":       Absent,
}

var attendanceLabels = map[AttendanceStatus]string{
	Present: "Hadir",
	Late:    "Terlambat",
	Absent:  "Tidak Hadir",
}

// ParseAttendanceStatus normalizes English and Indonesian labels. Unknown
// values are returned verbatim so validation can reject them.
func ParseAttendanceStatus(s string) AttendanceStatus {
	if st, ok := attendanceAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return AttendanceStatus(s)
}

// Label is the Indonesian display text.
func (a AttendanceStatus) Label() string {
	if l, ok := attendanceLabels[a]; ok {
		return l
	}
	return string(a)
}

func (a *AttendanceStatus) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*a = ParseAttendanceStatus(s)
	return nil
}
