package meeting

import (
	"strings"
	"time"
)

// Facet names a filterable dimension.
type Facet string

const (
	FacetSemester     Facet = "semester"
	FacetAcademicYear Facet = "academic_year"
	FacetCourse       Facet = "course"
	FacetClass        Facet = "class"
	FacetStudent      Facet = "student"
	FacetDay          Facet = "day"
)

// Record is anything the facet filter can inspect. Facet reports false when
// the record does not carry the field.
type Record interface {
	Facet(f Facet) (string, bool)
	RecordDate() (Date, bool)
}

// Criteria selects records by exact facet value. Empty fields are ignored.
type Criteria struct {
	Semester     string `json:"semester,omitempty" form:"semester"`
	AcademicYear string `json:"academic_year,omitempty" form:"academic_year"`
	Course       string `json:"course,omitempty" form:"course"`
	Class        string `json:"class,omitempty" form:"class"`
	Student      string `json:"student,omitempty" form:"student"`
	Day          string `json:"day,omitempty" form:"day"`
}

// IsEmpty reports whether no facet is set.
func (c Criteria) IsEmpty() bool { return c == Criteria{} }

type facetValue struct {
	facet Facet
	want  string
}

func (c Criteria) exact() []facetValue {
	all := []facetValue{
		{FacetSemester, c.Semester},
		{FacetAcademicYear, c.AcademicYear},
		{FacetCourse, c.Course},
		{FacetClass, c.Class},
		{FacetStudent, c.Student},
	}
	set := all[:0]
	for _, f := range all {
		if f.want != "" {
			set = append(set, f)
		}
	}
	return set
}

// Matches reports whether r satisfies every set facet of c.
func (c Criteria) Matches(r Record) bool {
	for _, f := range c.exact() {
		got, ok := r.Facet(f.facet)
		if !ok || got != f.want {
			return false
		}
	}
	if c.Day != "" {
		want, ok := ParseWeekday(c.Day)
		if !ok {
			return false
		}
		d, ok := r.RecordDate()
		if !ok || d.Weekday() != want {
			return false
		}
	}
	return true
}

// FilterRecords returns the records matching c in their original order. The
// input slice is not modified; with empty criteria it is returned as is.
func FilterRecords[R Record](records []R, c Criteria) []R {
	if c.IsEmpty() {
		return records
	}
	out := make([]R, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"minggu": time.Sunday,
	"senin":  time.Monday,
	"selasa": time.Tuesday,
	"rabu":   time.Wednesday,
	"kamis":  time.Thursday,
	"jumat":  time.Friday,
	"jum'at": time.Friday,
	"sabtu":  time.Saturday,
}

var weekdayLabels = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

// ParseWeekday maps an Indonesian or English day name to a weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if wd, ok := weekdayNames[key]; ok {
		return wd, true
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), key) {
			return wd, true
		}
	}
	return 0, false
}

// WeekdayLabel returns the Indonesian name of wd.
func WeekdayLabel(wd time.Weekday) string {
	if wd < time.Sunday || wd > time.Saturday {
		return ""
	}
	return weekdayLabels[wd]
}
