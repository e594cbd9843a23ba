package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-folio/internal/repair"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

// Runner executes a repair sweep.
type Runner interface {
	Run(ctx context.Context, opts repair.Options) (repair.Report, error)
}

// Options configures one command execution.
type Options struct {
	HotelID         *int64
	DryRun          bool
	ContinueOnError bool
	Limit           int
	Actor           int64
	JSONOutput      bool
	Stdout          io.Writer
	Stderr          io.Writer
}

// parseOptions reads the command line. defaultActor is used when --actor is absent.
func parseOptions(args []string, defaultActor int64, stderr io.Writer) (Options, error) {
	fs := flag.NewFlagSet("fix-voided-payment-transfers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hotel := fs.String("hotel-id", "", "restrict the sweep to one hotel")
	dryRun := fs.Bool("dry-run", false, "report violations without changing the ledger")
	cont := fs.Bool("continue-on-error", false, "keep going after a failed fix")
	limit := fs.Int("limit", 0, "maximum violations to handle (0 for all)")
	actor := fs.Int64("actor", defaultActor, "user id recorded on repaired rows")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	opts := Options{DryRun: *dryRun, ContinueOnError: *cont, Limit: *limit, Actor: *actor, JSONOutput: *asJSON}
	if *hotel != "" {
		id, err := strconv.ParseInt(*hotel, 10, 64)
		if err != nil || id <= 0 {
			return Options{}, fmt.Errorf("invalid --hotel-id %q", *hotel)
		}
		opts.HotelID = &id
	}
	if opts.Limit < 0 {
		return Options{}, errors.New("--limit must not be negative")
	}
	return opts, nil
}

// Execute runs the sweep and prints the report. It returns the process exit code.
func Execute(ctx context.Context, runner Runner, opts Options) int {
	report, err := runner.Run(ctx, repair.Options{
		HotelID:         opts.HotelID,
		DryRun:          opts.DryRun,
		ContinueOnError: opts.ContinueOnError,
		Limit:           opts.Limit,
		Actor:           opts.Actor,
	})
	if err != nil && !errors.Is(err, repair.ErrAborted) {
		fmt.Fprintf(opts.Stderr, "fix-voided-payment-transfers: %v\n", err)
		return exitUsage
	}
	if writeErr := writeReport(opts, report); writeErr != nil {
		fmt.Fprintf(opts.Stderr, "fix-voided-payment-transfers: %v\n", writeErr)
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fix-voided-payment-transfers: %v\n", err)
		return exitFailure
	}
	if report.Failed > 0 {
		return exitFailure
	}
	return exitOK
}

func writeReport(opts Options, report repair.Report) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	p := message.NewPrinter(language.English)
	mode := "apply"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(opts.Stdout, "mode: %s\n", mode)
	for _, o := range report.Outcomes {
		fmt.Fprintf(opts.Stdout, "%-10s %-24s hotel=%d source=%d linked=%d", o.Status, o.Kind, o.HotelID, o.SourceID, o.LinkedID)
		if o.Error != "" {
			fmt.Fprintf(opts.Stdout, " error=%q", o.Error)
		}
		fmt.Fprintln(opts.Stdout)
	}
	_, err := p.Fprintf(opts.Stdout, "found %d, fixed %d, skipped %d, failed %d\n", report.Found, report.Fixed, report.Skipped, report.Failed)
	return err
}
