package attendance

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"presensi/internal/meeting"
)

//go:embed schema.sql
var schema string

// Repository persists the mirror of upstream data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the mirror tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// UpsertMeetings writes meetings, replacing earlier copies by id.
func (r *Repository) UpsertMeetings(ctx context.Context, meetings []meeting.Meeting) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range meetings {
			var className, courseName, courseCode, semester, year string
			if m.Class != nil {
				className = m.Class.Name
				if c := m.Class.Course; c != nil {
					courseName, courseCode, semester, year = c.Name, c.Code, c.Semester, c.AcademicYear
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO meetings (id, class_id, class_name, course_name, course_code, semester, academic_year,
					meeting_date, start_time, end_time, room, total_students, present_students, synced_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
				ON CONFLICT (id) DO UPDATE SET
					class_id = EXCLUDED.class_id,
					class_name = EXCLUDED.class_name,
					course_name = EXCLUDED.course_name,
					course_code = EXCLUDED.course_code,
					semester = EXCLUDED.semester,
					academic_year = EXCLUDED.academic_year,
					meeting_date = EXCLUDED.meeting_date,
					start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					room = EXCLUDED.room,
					total_students = EXCLUDED.total_students,
					present_students = EXCLUDED.present_students,
					synced_at = NOW()
			`, m.ID, m.ClassID, className, courseName, courseCode, semester, year,
				dateArg(m.Date), m.StartTime.String(), m.EndTime.String(), m.Room, m.TotalStudents, m.PresentStudents)
			if err != nil {
				return fmt.Errorf("upsert meeting %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// MeetingsByClass returns mirrored meetings for a class ordered by date.
func (r *Repository) MeetingsByClass(ctx context.Context, classID int64) ([]meeting.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, class_name, course_name, course_code, semester, academic_year,
			meeting_date, start_time, end_time, room, total_students, present_students
		FROM meetings
		WHERE class_id = $1
		ORDER BY meeting_date, start_time, id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []meeting.Meeting
	for rows.Next() {
		var (
			m                                  meeting.Meeting
			className, course, code, sem, year string
			start, end                         string
			date                               sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ClassID, &className, &course, &code, &sem, &year,
			&date, &start, &end, &m.Room, &m.TotalStudents, &m.PresentStudents); err != nil {
			return nil, err
		}
		m.Date = dateValue(date)
		m.StartTime, m.EndTime = clockValue(start), clockValue(end)
		if className != "" || course != "" {
			m.Class = &meeting.Class{ID: m.ClassID, Name: className}
			if course != "" {
				m.Class.Course = &meeting.Course{Name: course, Code: code, Semester: sem, AcademicYear: year}
			}
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpsertHistory writes attendance records, replacing earlier copies by id.
func (r *Repository) UpsertHistory(ctx context.Context, records []meeting.AttendanceRecord) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			var studentID sql.NullInt64
			var nim, name, course, sem, year, class sql.NullString
			if s := rec.Student; s != nil {
				studentID = sql.NullInt64{Int64: s.ID, Valid: true}
				nim = sql.NullString{String: s.NIM, Valid: true}
				name = sql.NullString{String: s.Name, Valid: true}
			}
			if c := rec.Course; c != nil {
				course = sql.NullString{String: c.Name, Valid: true}
				sem = sql.NullString{String: c.Semester, Valid: true}
				year = sql.NullString{String: c.AcademicYear, Valid: true}
			}
			if c := rec.Class; c != nil {
				class = sql.NullString{String: c.Name, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attendance_records (id, meeting_id, meeting_date, start_time, end_time,
					student_id, student_nim, student_name, course_name, semester, academic_year, class_name,
					status, check_in_time, check_out_time, synced_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
				ON CONFLICT (id) DO UPDATE SET
					meeting_id = EXCLUDED.meeting_id,
					meeting_date = EXCLUDED.meeting_date,
					start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					student_id = EXCLUDED.student_id,
					student_nim = EXCLUDED.student_nim,
					student_name = EXCLUDED.student_name,
					course_name = EXCLUDED.course_name,
					semester = EXCLUDED.semester,
					academic_year = EXCLUDED.academic_year,
					class_name = EXCLUDED.class_name,
					status = EXCLUDED.status,
					check_in_time = EXCLUDED.check_in_time,
					check_out_time = EXCLUDED.check_out_time,
					synced_at = NOW()
			`, rec.ID, rec.Meeting.ID, dateArg(rec.Meeting.Date), rec.Meeting.StartTime.String(), rec.Meeting.EndTime.String(),
				studentID, nim, name, course, sem, year, class,
				string(rec.Status), timeArg(rec.CheckIn), timeArg(rec.CheckOut))
			if err != nil {
				return fmt.Errorf("upsert attendance record %d: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// History returns every mirrored attendance record, newest meeting first.
func (r *Repository) History(ctx context.Context) ([]meeting.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meeting_id, meeting_date, start_time, end_time,
			student_id, student_nim, student_name, course_name, semester, academic_year, class_name,
			status, check_in_time, check_out_time
		FROM attendance_records
		ORDER BY meeting_date DESC NULLS LAST, start_time DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []meeting.AttendanceRecord
	for rows.Next() {
		var (
			rec                                 meeting.AttendanceRecord
			date, checkIn, checkOut             sql.NullTime
			start, end, status                  string
			studentID                           sql.NullInt64
			nim, name, course, sem, year, class sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Meeting.ID, &date, &start, &end,
			&studentID, &nim, &name, &course, &sem, &year, &class,
			&status, &checkIn, &checkOut); err != nil {
			return nil, err
		}
		rec.Meeting.Date = dateValue(date)
		rec.Meeting.StartTime, rec.Meeting.EndTime = clockValue(start), clockValue(end)
		rec.Status = meeting.ParseAttendanceStatus(status)
		rec.CheckIn, rec.CheckOut = timeValue(checkIn), timeValue(checkOut)
		if studentID.Valid {
			rec.Student = &meeting.Student{ID: studentID.Int64, NIM: nim.String, Name: name.String}
		}
		if course.Valid {
			rec.Course = &meeting.Course{Name: course.String, Semester: sem.String, AcademicYear: year.String}
		}
		if class.Valid {
			rec.Class = &meeting.Class{Name: class.String}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ReplaceClassStudents stores the roster of a class, dropping students no
// longer enrolled.
func (r *Repository) ReplaceClassStudents(ctx context.Context, classID int64, students []meeting.Student) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM class_students WHERE class_id = $1`, classID); err != nil {
			return err
		}
		for _, s := range students {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO class_students (class_id, student_id, nim, name)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (class_id, student_id) DO UPDATE SET nim = EXCLUDED.nim, name = EXCLUDED.name
			`, classID, s.ID, s.NIM, s.Name); err != nil {
				return fmt.Errorf("insert student %d: %w", s.ID, err)
			}
		}
		return nil
	})
}

// StudentsByClass returns the mirrored roster ordered by NIM.
func (r *Repository) StudentsByClass(ctx context.Context, classID int64) ([]meeting.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, nim, name FROM class_students WHERE class_id = $1 ORDER BY nim
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []meeting.Student
	for rows.Next() {
		var s meeting.Student
		if err := rows.Scan(&s.ID, &s.NIM, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SyncRun records one processed sync job.
type SyncRun struct {
	ID         string
	Kind       string
	UserKey    string
	ClassID    int64
	Records    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordSyncRun appends a sync run to the audit table.
func (r *Repository) RecordSyncRun(ctx context.Context, run SyncRun) error {
	var errText sql.NullString
	if run.Err != nil {
		errText = sql.NullString{String: run.Err.Error(), Valid: true}
	}
	var classID sql.NullInt64
	if run.ClassID != 0 {
		classID = sql.NullInt64{Int64: run.ClassID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, kind, user_key, class_id, records, error, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.Kind, run.UserKey, classID, run.Records, errText, run.StartedAt, run.FinishedAt)
	return err
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func dateArg(d meeting.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.In(time.UTC)
}

func dateValue(t sql.NullTime) meeting.Date {
	if !t.Valid {
		return meeting.Date{}
	}
	return meeting.DateOf(t.Time.UTC())
}

func clockValue(s string) meeting.Clock {
	c, err := meeting.ParseClock(s)
	if err != nil {
		return meeting.Clock{}
	}
	return c
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeValue(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
