package meeting

import "sort"

// FacetValues lists the distinct values seen per facet, in first-seen order.
type FacetValues struct {
	Semesters     []string `json:"semesters"`
	AcademicYears []string `json:"academic_years"`
	Courses       []string `json:"courses"`
	Classes       []string `json:"classes"`
	Students      []string `json:"students"`
}

// Facets collects the values a filter menu can offer for records.
func Facets[R Record](records []R) FacetValues {
	var fv FacetValues
	seen := map[Facet]map[string]bool{}
	add := func(f Facet, dst *[]string, r R) {
		v, ok := r.Facet(f)
		if !ok {
			return
		}
		if seen[f] == nil {
			seen[f] = map[string]bool{}
		}
		if seen[f][v] {
			return
		}
		seen[f][v] = true
		*dst = append(*dst, v)
	}
	for _, r := range records {
		add(FacetSemester, &fv.Semesters, r)
		add(FacetAcademicYear, &fv.AcademicYears, r)
		add(FacetCourse, &fv.Courses, r)
		add(FacetClass, &fv.Classes, r)
		add(FacetStudent, &fv.Students, r)
	}
	return fv
}

// Summary counts attendance records by status.
type Summary struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Late    int     `json:"late"`
	Absent  int     `json:"absent"`
	Rate    float64 `json:"attendance_rate"`
}

// Summarize counts records per status. Late counts as attended in Rate.
func Summarize(records []AttendanceRecord) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case Present:
			s.Present++
		case Late:
			s.Late++
		case Absent:
			s.Absent++
		default:
			continue
		}
		s.Total++
	}
	if s.Total > 0 {
		s.Rate = float64(s.Present+s.Late) / float64(s.Total)
	}
	return s
}

// SortByDate returns a copy of records ordered by meeting date and start
// time. Ties keep their input order. Records without a date sort last.
func SortByDate(records []AttendanceRecord, descending bool) []AttendanceRecord {
	out := make([]AttendanceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Meeting, out[j].Meeting
		if a.Date.IsZero() != b.Date.IsZero() {
			return b.Date.IsZero()
		}
		if a.Date != b.Date {
			if descending {
				return b.Date.Before(a.Date)
			}
			return a.Date.Before(b.Date)
		}
		if descending {
			return a.StartTime.Minutes() > b.StartTime.Minutes()
		}
		return a.StartTime.Minutes() < b.StartTime.Minutes()
	})
	return out
}
