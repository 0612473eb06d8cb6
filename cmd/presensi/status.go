package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"presensi/internal/meeting"
)

var atLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// parseAt reads the reference instant. Layouts without a zone are taken in loc.
func parseAt(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Now().In(loc), nil
	}
	for _, layout := range atLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse --at %q", s)
}

func statusCmd(g *globalFlags) *cobra.Command {
	var (
		file   string
		at     string
		day    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of each meeting at a given instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := g.location()
			if err != nil {
				return err
			}
			now, err := parseAt(at, loc)
			if err != nil {
				return err
			}
			meetings, err := loadMeetings(file, g.logger(cmd))
			if err != nil {
				return err
			}
			items := schedule(meetings, day, now)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return printSchedule(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().StringVarP(&file, "meetings", "m", "", "JSON file with meetings")
	cmd.Flags().StringVar(&at, "at", "", "Reference instant (RFC3339 or \"2006-01-02 15:04\"), default now")
	cmd.Flags().StringVar(&day, "day", "", "Only meetings on this weekday (Senin..Minggu or English)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	_ = cmd.MarkFlagRequired("meetings")
	return cmd
}

func schedule(meetings []meeting.Meeting, day string, now time.Time) []meeting.Annotated {
	picked := append([]meeting.Meeting(nil), meeting.FilterRecords(meetings, meeting.Criteria{Day: day})...)
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].Date != picked[j].Date {
			return picked[i].Date.Before(picked[j].Date)
		}
		return picked[i].StartTime.Minutes() < picked[j].StartTime.Minutes()
	})
	return meeting.Annotate(picked, now)
}

func printSchedule(w io.Writer, items []meeting.Annotated) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTANGGAL\tHARI\tWAKTU\tSTATUS")
	for _, m := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s-%s\t%s\n",
			m.ID, m.Date, meeting.WeekdayLabel(m.Date.Weekday()), m.StartTime, m.EndTime, m.StatusLabel)
	}
	return tw.Flush()
}
