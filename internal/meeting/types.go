package meeting

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Date is a calendar date without a time zone, encoded as "2006-01-02".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday uses the proleptic Gregorian calendar and does not depend on locale.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

var timestampLoc atomic.Pointer[time.Location]

// SetTimestampLocation sets the zone RFC 3339 dates are converted into before
// their calendar date is taken. Backends that send local midnight as UTC
// ("2024-03-19T17:00:00Z" for 20 March in Jakarta) need this set to the
// campus zone. A nil loc keeps each timestamp's own offset, which is the
// default.
func SetTimestampLocation(loc *time.Location) { timestampLoc.Store(loc) }

// UnmarshalJSON accepts "2006-01-02" and full RFC 3339 timestamps, keeping
// only the date part. See SetTimestampLocation.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len("2006-01-02") {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			if loc := timestampLoc.Load(); loc != nil {
				t = t.In(loc)
			}
			*d = DateOf(t)
			return nil
		}
		s = s[:len("2006-01-02")]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day with minute precision, encoded as "15:04".
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "15:04" or "15:04:05"; seconds are dropped.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*c = Clock{}
		return nil
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Combine returns the instant at clock c on date d in loc.
func Combine(d Date, c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// Course is the subject a class belongs to.
type Course struct {
	ID           int64  `json:"id,omitempty"`
	Code         string `json:"code,omitempty"`
	Name         string `json:"name"`
	Semester     string `json:"semester"`
	AcademicYear string `json:"academic_year"`
}

// Text implements Searchable over "name" and "code".
func (c Course) Text(field string) (string, bool) {
	switch field {
	case "name":
		return c.Name, c.Name != ""
	case "code":
		return c.Code, c.Code != ""
	}
	return "", false
}

// Class is one section of a course.
type Class struct {
	ID     int64   `json:"id,omitempty"`
	Name   string  `json:"name"`
	Course *Course `json:"course,omitempty"`
}

// Student is a registered student. NIM is the campus student number.
type Student struct {
	ID   int64  `json:"id"`
	NIM  string `json:"nim"`
	Name string `json:"name"`
}

// Key is the label used by the student facet.
func (s Student) Key() string { return s.NIM + " - " + s.Name }

// Text implements Searchable.
func (s Student) Text(field string) (string, bool) {
	switch field {
	case "name":
		return s.Name, s.Name != ""
	case "nim":
		return s.NIM, s.NIM != ""
	}
	return "", false
}

// AvailableStudents returns the students in all that are not enrolled,
// matched by ID, in the order of all.
func AvailableStudents(all, enrolled []Student) []Student {
	taken := make(map[int64]bool, len(enrolled))
	for _, s := range enrolled {
		taken[s.ID] = true
	}
	out := make([]Student, 0, len(all))
	for _, s := range all {
		if !taken[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// Attendee is one entry in a meeting's attendance list.
type Attendee struct {
	StudentID int64            `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	CheckIn   *time.Time       `json:"check_in_time,omitempty"`
	CheckOut  *time.Time       `json:"check_out_time,omitempty"`
}

// Meeting is a single scheduled class session.
type Meeting struct {
	ID              int64      `json:"id" validate:"required"`
	ClassID         int64      `json:"class_id"`
	Class           *Class     `json:"class,omitempty"`
	Date            Date       `json:"date"`
	StartTime       Clock      `json:"start_time"`
	EndTime         Clock      `json:"end_time"`
	Room            string     `json:"room,omitempty"`
	TotalStudents   int        `json:"total_students,omitempty"`
	PresentStudents int        `json:"present_students,omitempty"`
	Attendees       []Attendee `json:"attendance_list,omitempty"`
}

// Window returns the combined start and end instants in loc.
func (m Meeting) Window(loc *time.Location) (start, end time.Time) {
	return Combine(m.Date, m.StartTime, loc), Combine(m.Date, m.EndTime, loc)
}

func (m Meeting) course() *Course {
	if m.Class == nil {
		return nil
	}
	return m.Class.Course
}

// Facet implements Record.
func (m Meeting) Facet(f Facet) (string, bool) {
	switch f {
	case FacetClass:
		if m.Class == nil || m.Class.Name == "" {
			return "", false
		}
		return m.Class.Name, true
	case FacetSemester, FacetAcademicYear, FacetCourse:
		return courseFacet(m.course(), f)
	}
	return "", false
}

// RecordDate implements Record.
func (m Meeting) RecordDate() (Date, bool) { return m.Date, !m.Date.IsZero() }

// Text implements Searchable.
func (m Meeting) Text(field string) (string, bool) {
	switch field {
	case "room":
		return m.Room, m.Room != ""
	case "class":
		return m.Facet(FacetClass)
	case "course":
		return m.Facet(FacetCourse)
	}
	return "", false
}

// AttendanceRecord is one student's presence for one meeting.
type AttendanceRecord struct {
	ID       int64            `json:"id" validate:"required"`
	Meeting  Meeting          `json:"meeting" validate:"-"`
	Student  *Student         `json:"student,omitempty"`
	Course   *Course          `json:"course,omitempty"`
	Class    *Class           `json:"class,omitempty"`
	Status   AttendanceStatus `json:"status" validate:"required,oneof=present late absent"`
	CheckIn  *time.Time       `json:"check_in_time,omitempty"`
	CheckOut *time.Time       `json:"check_out_time,omitempty"`
}

// Facet implements Record.
func (r AttendanceRecord) Facet(f Facet) (string, bool) {
	switch f {
	case FacetClass:
		if r.Class == nil || r.Class.Name == "" {
			return "", false
		}
		return r.Class.Name, true
	case FacetStudent:
		if r.Student == nil {
			return "", false
		}
		return r.Student.Key(), true
	case FacetSemester, FacetAcademicYear, FacetCourse:
		return courseFacet(r.Course, f)
	}
	return "", false
}

// RecordDate implements Record.
func (r AttendanceRecord) RecordDate() (Date, bool) {
	return r.Meeting.Date, !r.Meeting.Date.IsZero()
}

// Text implements Searchable.
func (r AttendanceRecord) Text(field string) (string, bool) {
	switch field {
	case "name", "nim":
		if r.Student == nil {
			return "", false
		}
		return r.Student.Text(field)
	case "course":
		return r.Facet(FacetCourse)
	case "class":
		return r.Facet(FacetClass)
	}
	return "", false
}

func courseFacet(c *Course, f Facet) (string, bool) {
	if c == nil {
		return "", false
	}
	var v string
	switch f {
	case FacetSemester:
		v = c.Semester
	case FacetAcademicYear:
		v = c.AcademicYear
	case FacetCourse:
		v = c.Name
	}
	return v, v != ""
}
