// Package export renders a meeting's attendance as CSV or XLSX sheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"presensi/internal/meeting"
)

// Format is an export file type.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return CSV, nil
	case "xlsx":
		return XLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type served with the file.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Header is the column row of every sheet.
var Header = []string{"NIM", "Nama", "Status", "Waktu"}

const pendingLabel = "Belum Hadir"

// Row is one student line of the sheet.
type Row struct {
	NIM     string
	Name    string
	Status  meeting.AttendanceStatus
	CheckIn *time.Time
}

func (r Row) cells(loc *time.Location) []string {
	status := pendingLabel
	if r.Status != "" {
		status = r.Status.Label()
	}
	at := "-"
	if r.CheckIn != nil {
		at = r.CheckIn.In(loc).Format("15:04")
	}
	return []string{r.NIM, r.Name, status, at}
}

// Sheet is the attendance of one meeting.
type Sheet struct {
	Course string
	Date   meeting.Date
	Rows   []Row
}

// Build joins the class roster with the recorded attendance of m. Students
// follow roster order; records for students missing from the roster are
// appended after them.
func Build(m meeting.Meeting, roster []meeting.Student, records []meeting.AttendanceRecord) Sheet {
	sheet := Sheet{Date: m.Date}
	if m.Class != nil && m.Class.Course != nil {
		sheet.Course = m.Class.Course.Name
	}

	byStudent := map[int64]meeting.AttendanceRecord{}
	var loose []meeting.AttendanceRecord
	for _, rec := range records {
		if rec.Meeting.ID != m.ID || rec.Student == nil {
			continue
		}
		if sheet.Course == "" && rec.Course != nil {
			sheet.Course = rec.Course.Name
		}
		byStudent[rec.Student.ID] = rec
		loose = append(loose, rec)
	}
	attendees := map[int64]meeting.Attendee{}
	for _, a := range m.Attendees {
		attendees[a.StudentID] = a
	}

	listed := map[int64]bool{}
	for _, s := range roster {
		listed[s.ID] = true
		row := Row{NIM: s.NIM, Name: s.Name}
		if rec, ok := byStudent[s.ID]; ok {
			row.Status, row.CheckIn = rec.Status, rec.CheckIn
		} else if a, ok := attendees[s.ID]; ok {
			row.Status, row.CheckIn = a.Status, a.CheckIn
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	for _, rec := range loose {
		if listed[rec.Student.ID] {
			continue
		}
		listed[rec.Student.ID] = true
		sheet.Rows = append(sheet.Rows, Row{NIM: rec.Student.NIM, Name: rec.Student.Name, Status: rec.Status, CheckIn: rec.CheckIn})
	}
	return sheet
}

// unsafeName matches runs that may not appear in a header filename.
var unsafeName = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// Filename is kehadiran_<course>_<date>.<ext>. Runs of whitespace, quotes and
// other non-ASCII or punctuation characters in the course become underscores.
func (s Sheet) Filename(f Format) string {
	course := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(s.Course), "_"), "_")
	if course == "" {
		course = "kelas"
	}
	return fmt.Sprintf("kehadiran_%s_%s.%s", course, s.Date, f)
}

// Write renders the sheet in format f. Check-in times are shown in loc.
func (s Sheet) Write(w io.Writer, f Format, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	switch f {
	case CSV:
		return s.writeCSV(w, loc)
	case XLSX:
		return s.writeXLSX(w, loc)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

func (s Sheet) writeCSV(w io.Writer, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range s.Rows {
		if err := cw.Write(r.cells(loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Kehadiran"

func (s Sheet) writeXLSX(w io.Writer, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &Header); err != nil {
		return err
	}
	for i, r := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		cells := r.cells(loc)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
