package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/report"
	"github.com/roach88/readykit/internal/syncqueue"
)

// Submission states reported by "report submit".
const (
	SubmitSubmitted = "submitted"
	SubmitQueued    = "queued"
	SubmitRejected  = "rejected"
)

// SubmitResult is the output of "report submit".
type SubmitResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Queued int    `json:"queued"`
}

type submitFlags struct {
	incidentType string
	description  string
	date         string
	time         string
	lat, lon     float64
	phone        string
	images       []string
}

func newReportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Create and inspect incident reports",
	}
	cmd.AddCommand(newReportSubmitCommand(opts))
	cmd.AddCommand(newReportListCommand(opts))
	return cmd
}

func newReportSubmitCommand(opts *RootOptions) *cobra.Command {
	f := &submitFlags{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a report and try to deliver it",
		Long: `Build an incident report, store it in the local queue and flush the
queue once.

A report that cannot be delivered because the service is unreachable stays
queued and the command still succeeds. Reports the service rejects are
held for "queue retry" or "queue discard".

Example:
  readykit report submit --type Flooding --description "knee-deep water"
  readykit report submit --type Fire --description "smoke" --lat 13.05 --lon 123.52 --image photo.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportSubmit(opts, f, cmd)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.incidentType, "type", "", "incident type (required)")
	fl.StringVar(&f.description, "description", "", "what happened (required)")
	fl.StringVar(&f.date, "date", "", "incident date YYYY-MM-DD (default today)")
	fl.StringVar(&f.time, "time", "", "incident time HH:MM (default now)")
	fl.Float64Var(&f.lat, "lat", 0, "latitude in decimal degrees")
	fl.Float64Var(&f.lon, "lon", 0, "longitude in decimal degrees")
	fl.StringVar(&f.phone, "phone", "", "reporter phone (default from config)")
	fl.StringArrayVar(&f.images, "image", nil, "image file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func runReportSubmit(opts *RootOptions, f *submitFlags, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	ids := opts.ids()

	draft := report.Draft{
		IncidentType:  f.incidentType,
		Date:          f.date,
		Time:          f.time,
		Description:   f.description,
		ReporterPhone: f.phone,
	}
	if draft.ReporterPhone == "" {
		draft.ReporterPhone = opts.Config.Phone
	}
	if cmd.Flags().Changed("lat") {
		draft.Latitude = &f.lat
	}
	if cmd.Flags().Changed("lon") {
		draft.Longitude = &f.lon
	}
	for _, path := range f.images {
		data, err := os.ReadFile(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to read image", err)
		}
		draft.Images = append(draft.Images,
			report.NewImage(ids, filepath.Base(path), http.DetectContentType(data), data))
	}
	r := draft.Build(ids, opts.clock().Now())

	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	q, err := a.openQueue(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load queue", err)
	}
	if _, err := q.Enqueue(ctx, r); err != nil {
		return formatter.Fail(ExitFailure, "report not queued", err)
	}

	res, flushErr := q.Flush(ctx)
	if flushErr != nil {
		a.log.Warn("Flush incomplete", zap.Error(flushErr))
	}

	out := SubmitResult{ID: r.ID, Status: SubmitSubmitted, Queued: q.Pending()}
	if e, ok := q.Get(r.ID); ok {
		out.Status = SubmitQueued
		out.Error = e.LastError
		if e.Failure == syncqueue.FailureRejected {
			out.Status = SubmitRejected
		}
	}
	a.log.Info("Report submitted",
		zap.String("report_id", r.ID),
		zap.String("status", out.Status),
		zap.Int("synced", res.Synced))

	if err := formatter.Emit(out, func(w io.Writer) error {
		switch out.Status {
		case SubmitSubmitted:
			fmt.Fprintf(w, "✓ Report %s submitted\n", out.ID)
		case SubmitQueued:
			fmt.Fprintf(w, "Report %s queued; it will be sent when the service is reachable\n", out.ID)
		default:
			fmt.Fprintf(w, "✗ Report %s rejected: %s\n", out.ID, out.Error)
		}
		if out.Queued > 0 {
			fmt.Fprintf(w, "%d report(s) waiting in the queue\n", out.Queued)
		}
		return nil
	}); err != nil {
		return err
	}

	if out.Status == SubmitRejected {
		return WrapExitError(ExitFailure, ErrCodeValidation+" report rejected",
			fault.New(fault.KindValidation, "submit report", fault.ReasonRejected))
	}
	return nil
}

func newReportListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reports held by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			a := &app{opts: opts, log: opts.Logger}
			reports, err := a.reports().List(cmd.Context())
			if err != nil {
				return formatter.Fail(ExitFailure, "failed to list reports", err)
			}
			return formatter.Emit(reports, func(w io.Writer) error {
				if len(reports) == 0 {
					fmt.Fprintln(w, "No reports")
					return nil
				}
				for _, r := range reports {
					fmt.Fprintf(w, "%s  %s %s  %-18s %s\n", r.ID, r.Date, r.Time, r.IncidentType, r.Description)
				}
				return nil
			})
		},
	}
}
