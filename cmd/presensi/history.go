package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"presensi/internal/meeting"
)

func historyCmd(g *globalFlags) *cobra.Command {
	var (
		file     string
		criteria meeting.Criteria
		query    string
		fields   []string
		order    string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Filter and search attendance history",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := g.location()
			if err != nil {
				return err
			}
			if order != "asc" && order != "desc" {
				return fmt.Errorf("--sort must be asc or desc, got %q", order)
			}
			records, err := loadHistory(file, g.logger(cmd))
			if err != nil {
				return err
			}
			facets := meeting.Facets(records)
			picked := meeting.SearchByText(meeting.FilterRecords(records, criteria), query, fields)
			picked = meeting.SortByDate(picked, order == "desc")
			summary := meeting.Summarize(picked)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"records": picked, "facets": facets, "summary": summary})
			}
			return printHistory(cmd.OutOrStdout(), picked, summary, loc)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "JSON file with attendance history")
	f.StringVar(&criteria.Semester, "semester", "", "Semester facet")
	f.StringVar(&criteria.AcademicYear, "academic-year", "", "Academic year facet")
	f.StringVar(&criteria.Course, "course", "", "Course name facet")
	f.StringVar(&criteria.Class, "class", "", "Class name facet")
	f.StringVar(&criteria.Student, "student", "", `Student facet ("<nim> - <name>")`)
	f.StringVar(&criteria.Day, "day", "", "Weekday facet")
	f.StringVarP(&query, "query", "q", "", "Free-text search")
	f.StringSliceVar(&fields, "fields", []string{"name", "nim", "course"}, "Fields searched by --query")
	f.StringVar(&order, "sort", "desc", "Date order (asc, desc)")
	f.BoolVar(&asJSON, "json", false, "Print JSON with facets and summary")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printHistory(w io.Writer, records []meeting.AttendanceRecord, s meeting.Summary, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TANGGAL\tNIM\tNAMA\tMATA KULIAH\tKELAS\tSTATUS\tMASUK")
	for _, r := range records {
		nim, name := "-", "-"
		if r.Student != nil {
			nim, name = r.Student.NIM, r.Student.Name
		}
		course, _ := r.Facet(meeting.FacetCourse)
		class, _ := r.Facet(meeting.FacetClass)
		in := "-"
		if r.CheckIn != nil {
			in = r.CheckIn.In(loc).Format("15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Meeting.Date, nim, name, dash(course), dash(class), r.Status.Label(), in)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal %d  Hadir %d  Terlambat %d  Tidak Hadir %d  Kehadiran %.0f%%\n",
		s.Total, s.Present, s.Late, s.Absent, s.Rate*100)
	return err
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
