package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"presensi/internal/export"
	"presensi/internal/meeting"
	"presensi/internal/metrics"
	"presensi/internal/queue"
)

// ErrNotFound is returned when a requested meeting does not exist.
var ErrNotFound = errors.New("not found")

// Source provides meetings, rosters and history. The upstream client and the
// Postgres mirror both satisfy it.
type Source interface {
	History(ctx context.Context) ([]meeting.AttendanceRecord, error)
	MeetingsByClass(ctx context.Context, classID int64) ([]meeting.Meeting, error)
	StudentsByClass(ctx context.Context, classID int64) ([]meeting.Student, error)
}

// SourceFunc resolves the Source used on behalf of a user key.
type SourceFunc func(userKey string) Source

// Mirror is the write side of the local copy.
type Mirror interface {
	UpsertMeetings(ctx context.Context, meetings []meeting.Meeting) error
	UpsertHistory(ctx context.Context, records []meeting.AttendanceRecord) error
	ReplaceClassStudents(ctx context.Context, classID int64, students []meeting.Student) error
	RecordSyncRun(ctx context.Context, run SyncRun) error
}

// Service composes a Source with the meeting engine.
type Service struct {
	read     SourceFunc
	upstream SourceFunc
	mirror   Mirror
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a service reading through read. Meeting windows are
// evaluated in loc.
func NewService(read SourceFunc, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{read: read, upstream: read, loc: loc, log: log, now: time.Now}
}

// WithMirror enables Sync, copying from upstream into m.
func (s *Service) WithMirror(upstream SourceFunc, m Mirror) *Service {
	s.upstream = upstream
	s.mirror = m
	return s
}

// Location is the zone meeting windows are evaluated in.
func (s *Service) Location() *time.Location { return s.loc }

// Schedule lists a class's meetings in date order with their status at now.
// A non-empty day keeps only meetings on that weekday.
func (s *Service) Schedule(ctx context.Context, userKey string, classID int64, day string, now time.Time) ([]meeting.Annotated, error) {
	meetings, err := s.read(userKey).MeetingsByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	meetings = slices.Clone(meeting.FilterRecords(meetings, meeting.Criteria{Day: day}))
	sort.SliceStable(meetings, func(i, j int) bool {
		a, b := meetings[i], meetings[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.StartTime.Minutes() < b.StartTime.Minutes()
	})
	return meeting.Annotate(meetings, now.In(s.loc)), nil
}

// DefaultSearchFields are searched when a history query names none.
var DefaultSearchFields = []string{"name", "nim", "course"}

// HistoryQuery narrows an attendance history listing.
type HistoryQuery struct {
	Criteria   meeting.Criteria
	Query      string
	Fields     []string
	Descending bool
	// StudentNIM restricts the listing to one student before anything else.
	StudentNIM string
}

// HistoryResult is a filtered history page.
type HistoryResult struct {
	Records []meeting.AttendanceRecord `json:"records"`
	Facets  meeting.FacetValues        `json:"facets"`
	Summary meeting.Summary            `json:"summary"`
}

// History filters, searches and sorts the attendance history. Facets come
// from the unfiltered history so menus keep every option.
func (s *Service) History(ctx context.Context, userKey string, q HistoryQuery) (HistoryResult, error) {
	records, err := s.read(userKey).History(ctx)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("load history: %w", err)
	}
	if q.StudentNIM != "" {
		own := make([]meeting.AttendanceRecord, 0, len(records))
		for _, r := range records {
			if r.Student != nil && r.Student.NIM == q.StudentNIM {
				own = append(own, r)
			}
		}
		records = own
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}
	res := HistoryResult{Facets: meeting.Facets(records)}
	filtered := meeting.FilterRecords(records, q.Criteria)
	filtered = meeting.SearchByText(filtered, q.Query, fields)
	res.Records = meeting.SortByDate(filtered, q.Descending)
	res.Summary = meeting.Summarize(res.Records)
	metrics.FilterResults.Observe(float64(len(res.Records)))
	return res, nil
}

// Students lists a class roster matching query on name or NIM.
func (s *Service) Students(ctx context.Context, userKey string, classID int64, query string) ([]meeting.Student, error) {
	students, err := s.read(userKey).StudentsByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return meeting.SearchByText(students, query, []string{"name", "nim"}), nil
}

// MeetingAttendance builds the attendance sheet of one meeting.
func (s *Service) MeetingAttendance(ctx context.Context, userKey string, classID, meetingID int64) (export.Sheet, error) {
	src := s.read(userKey)
	meetings, err := src.MeetingsByClass(ctx, classID)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("list meetings: %w", err)
	}
	idx := slices.IndexFunc(meetings, func(m meeting.Meeting) bool { return m.ID == meetingID })
	if idx < 0 {
		return export.Sheet{}, fmt.Errorf("meeting %d in class %d: %w", meetingID, classID, ErrNotFound)
	}
	roster, err := src.StudentsByClass(ctx, classID)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("list students: %w", err)
	}
	history, err := src.History(ctx)
	if err != nil {
		return export.Sheet{}, fmt.Errorf("load history: %w", err)
	}
	return export.Build(meetings[idx], roster, history), nil
}

// Sync copies the part of the upstream named by job into the mirror and
// records the run.
func (s *Service) Sync(ctx context.Context, job queue.Job) error {
	if s.mirror == nil {
		return errors.New("mirror not configured")
	}
	run := SyncRun{ID: job.ID, Kind: job.Kind, UserKey: job.UserKey, ClassID: job.ClassID, StartedAt: s.now().UTC()}
	run.Records, run.Err = s.sync(ctx, job)
	run.FinishedAt = s.now().UTC()

	result := "ok"
	if run.Err != nil {
		result = "error"
	}
	metrics.SyncJobs.WithLabelValues(result).Inc()
	if err := s.mirror.RecordSyncRun(ctx, run); err != nil {
		s.log.Error("record sync run failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	return run.Err
}

func (s *Service) sync(ctx context.Context, job queue.Job) (int, error) {
	src := s.upstream(job.UserKey)
	switch job.Kind {
	case queue.KindSyncClass:
		if job.ClassID == 0 {
			return 0, errors.New("sync class: class id required")
		}
		meetings, err := src.MeetingsByClass(ctx, job.ClassID)
		if err != nil {
			return 0, fmt.Errorf("fetch meetings: %w", err)
		}
		students, err := src.StudentsByClass(ctx, job.ClassID)
		if err != nil {
			return 0, fmt.Errorf("fetch students: %w", err)
		}
		if err := s.mirror.UpsertMeetings(ctx, meetings); err != nil {
			return 0, fmt.Errorf("store meetings: %w", err)
		}
		if err := s.mirror.ReplaceClassStudents(ctx, job.ClassID, students); err != nil {
			return 0, fmt.Errorf("store students: %w", err)
		}
		return len(meetings) + len(students), nil
	case queue.KindSyncHistory:
		records, err := src.History(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch history: %w", err)
		}
		if err := s.mirror.UpsertHistory(ctx, records); err != nil {
			return 0, fmt.Errorf("store history: %w", err)
		}
		return len(records), nil
	}
	return 0, fmt.Errorf("unknown job kind %q", job.Kind)
}
