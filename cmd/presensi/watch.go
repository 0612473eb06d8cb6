package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"presensi/internal/meeting"
	"presensi/internal/state"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		file     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print meeting status changes as time passes or the file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := g.location()
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			clock := func() time.Time { return time.Now().In(loc) }
			return watch(cmd.Context(), cmd.OutOrStdout(), file, interval, clock, g.logger(cmd))
		},
	}
	cmd.Flags().StringVarP(&file, "meetings", "m", "", "JSON file with meetings")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "How often statuses are re-evaluated")
	_ = cmd.MarkFlagRequired("meetings")
	return cmd
}

func watch(ctx context.Context, out io.Writer, path string, every time.Duration, clock func() time.Time, log *slog.Logger) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()
	// Editors often replace the file, so watch its directory.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	sw := newStatusWatcher(out)
	st := state.NewStore()
	st.Subscribe(func(s state.Meetings) {
		switch {
		case s.Loading:
		case s.Err != nil:
			fmt.Fprintf(out, "%s reload failed: %v\n", clock().Format("15:04"), s.Err)
		default:
			sw.report(s.Items, clock())
		}
	})
	loaded := false
	reload := func() {
		prev := st.Snapshot().Items
		st.Dispatch(state.RequestStarted{})
		items, err := loadMeetings(path, log)
		if err != nil {
			st.Dispatch(state.RequestFailed{Err: err})
			return
		}
		if !loaded {
			loaded = true
			st.Dispatch(state.MeetingsFetched{Items: items})
			return
		}
		actions := state.Diff(prev, items)
		if len(actions) == 0 {
			// Nothing changed; clear the loading flag.
			actions = []state.Action{state.MeetingsFetched{Items: prev}}
		}
		for _, a := range actions {
			st.Dispatch(a)
		}
		log.Debug("meetings reloaded", slog.Int("changes", len(actions)))
	}
	reload()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				log.Debug("meetings file changed", slog.String("op", ev.Op.String()))
				reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", slog.Any("error", err))
		case <-ticker.C:
			sw.report(st.Snapshot().Items, clock())
		}
	}
}

// statusWatcher prints a line whenever a meeting's status differs from the
// last one it reported.
type statusWatcher struct {
	out  io.Writer
	mu   sync.Mutex
	last map[int64]meeting.Status
}

func newStatusWatcher(out io.Writer) *statusWatcher {
	return &statusWatcher{out: out, last: map[int64]meeting.Status{}}
}

func (w *statusWatcher) report(items []meeting.Meeting, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp := now.Format("15:04")
	seen := make(map[int64]bool, len(items))
	changed := 0
	for _, a := range schedule(items, "", now) {
		seen[a.ID] = true
		prev, ok := w.last[a.ID]
		if ok && prev == a.Status {
			continue
		}
		w.last[a.ID] = a.Status
		changed++
		desc := fmt.Sprintf("%d (%s %s-%s)", a.ID, a.Date, a.StartTime, a.EndTime)
		if ok {
			fmt.Fprintf(w.out, "%s meeting %s: %s -> %s\n", stamp, desc, prev.Label(), a.StatusLabel)
		} else {
			fmt.Fprintf(w.out, "%s meeting %s: %s\n", stamp, desc, a.StatusLabel)
		}
	}
	for id := range w.last {
		if !seen[id] {
			delete(w.last, id)
			changed++
			fmt.Fprintf(w.out, "%s meeting %d removed\n", stamp, id)
		}
	}
	return changed
}
