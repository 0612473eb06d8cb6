package meeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacets(t *testing.T) {
	records := append(history(), AttendanceRecord{ID: 5})

	fv := Facets(records)
	assert.Equal(t, []string{"ganjil", "genap"}, fv.Semesters)
	assert.Equal(t, []string{"2024", "2023"}, fv.AcademicYears)
	assert.Equal(t, []string{"Basis Data", "Struktur Data", "Pemrograman Mobile"}, fv.Courses)
	assert.Equal(t, []string{"A", "B"}, fv.Classes)
	assert.Equal(t, []string{"12345678 - John Doe", "87654321 - Jane Smith"}, fv.Students)

	// Every offered value selects at least one record.
	for _, c := range fv.Courses {
		assert.NotEmpty(t, FilterRecords(records, Criteria{Course: c}), c)
	}
	for _, s := range fv.Students {
		assert.NotEmpty(t, FilterRecords(records, Criteria{Student: s}), s)
	}
}

func TestSummarize(t *testing.T) {
	records := []AttendanceRecord{
		{ID: 1, Status: Present},
		{ID: 2, Status: Present},
		{ID: 3, Status: Late},
		{ID: 4, Status: Absent},
		{ID: 5, Status: AttendanceStatus("unknown")},
	}

	s := Summarize(records)
	assert.Equal(t, Summary{Total: 4, Present: 2, Late: 1, Absent: 1, Rate: 0.75}, s)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSortByDate(t *testing.T) {
	input := history()
	input = append(input, AttendanceRecord{ID: 5})
	input[0].Meeting.StartTime = Clock{Hour: 10}
	extra := input[0]
	extra.ID = 6
	extra.Meeting.StartTime = Clock{Hour: 8}
	input = append(input, extra)

	asc := SortByDate(input, false)
	assert.Equal(t, []int64{6, 1, 2, 4, 3, 5}, ids(asc))

	desc := SortByDate(input, true)
	assert.Equal(t, []int64{3, 4, 2, 1, 6, 5}, ids(desc))

	require.Equal(t, int64(1), input[0].ID, "input left untouched")
}
