package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"presensi/internal/meeting"
)

// loadMeetings reads a bare JSON array or the {"meetings": [...]} envelope
// returned by the upstream. Meetings without an id are dropped.
func loadMeetings(path string, log *slog.Logger) ([]meeting.Meeting, error) {
	var env struct {
		Meetings []meeting.Meeting `json:"meetings"`
	}
	items, err := decodeFile(path, &env, func() []meeting.Meeting { return env.Meetings })
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, m := range items {
		if m.ID == 0 {
			log.Warn("skipping meeting without id", slog.String("date", m.Date.String()))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// loadHistory reads a bare JSON array or the upstream history envelope.
// Records with an unknown status are dropped.
func loadHistory(path string, log *slog.Logger) ([]meeting.AttendanceRecord, error) {
	var env struct {
		History []meeting.AttendanceRecord `json:"history"`
		Data    struct {
			History []meeting.AttendanceRecord `json:"history"`
		} `json:"data"`
	}
	items, err := decodeFile(path, &env, func() []meeting.AttendanceRecord {
		if len(env.Data.History) > 0 {
			return env.Data.History
		}
		return env.History
	})
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, r := range items {
		switch r.Status {
		case meeting.Present, meeting.Late, meeting.Absent:
			out = append(out, r)
		default:
			log.Warn("skipping record with unknown status", slog.Int64("id", r.ID), slog.String("status", string(r.Status)))
		}
	}
	return out, nil
}

func decodeFile[T any](path string, envelope any, unwrap func() []T) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return items, nil
	}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return unwrap(), nil
}
