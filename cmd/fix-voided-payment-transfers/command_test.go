package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-folio/internal/repair"
)

type stubRunner struct {
	report repair.Report
	err    error
	got    repair.Options
}

func (s *stubRunner) Run(_ context.Context, opts repair.Options) (repair.Report, error) {
	s.got = opts
	return s.report, s.err
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"--hotel-id", "7", "--dry-run", "--limit", "20", "--json"}, 1, io.Discard)
	require.NoError(t, err)
	require.Equal(t, int64(7), *opts.HotelID)
	require.True(t, opts.DryRun)
	require.True(t, opts.JSONOutput)
	require.False(t, opts.ContinueOnError)
	require.Equal(t, 20, opts.Limit)
	require.Equal(t, int64(1), opts.Actor)

	opts, err = parseOptions([]string{"--continue-on-error", "--actor", "42"}, 1, io.Discard)
	require.NoError(t, err)
	require.Nil(t, opts.HotelID)
	require.Equal(t, int64(42), opts.Actor)

	for _, args := range [][]string{
		{"--hotel-id", "abc"},
		{"--hotel-id", "0"},
		{"--limit", "-1"},
		{"--unknown"},
		{"extra"},
	} {
		_, err := parseOptions(args, 1, io.Discard)
		require.Error(t, err, args)
	}
}

func sampleReport() repair.Report {
	return repair.Report{
		Found: 2, Fixed: 1, Failed: 1,
		Outcomes: []repair.Outcome{
			{Candidate: repair.Candidate{Kind: repair.KindVoidedPaymentOrphan, HotelID: 1, SourceID: 10, LinkedID: 11}, Status: repair.OutcomeFixed},
			{Candidate: repair.Candidate{Kind: repair.KindTransferPairMismatch, HotelID: 1, SourceID: 20, LinkedID: 21}, Status: repair.OutcomeFailed, Error: "folio locked"},
		},
	}
}

func TestExecuteJSONReport(t *testing.T) {
	runner := &stubRunner{report: repair.Report{DryRun: true, Found: 1, Outcomes: []repair.Outcome{
		{Candidate: repair.Candidate{Kind: repair.KindVoidedPaymentOrphan, HotelID: 3, SourceID: 5, LinkedID: 6}, Status: repair.OutcomeWouldFix},
	}}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	hotel := int64(3)
	code := Execute(context.Background(), runner, Options{HotelID: &hotel, DryRun: true, JSONOutput: true, Actor: 1, Stdout: stdout, Stderr: stderr})

	require.Equal(t, exitOK, code)
	require.Empty(t, stderr.String())
	require.True(t, runner.got.DryRun)
	require.Equal(t, &hotel, runner.got.HotelID)

	var report repair.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, 1, report.Found)
	require.Equal(t, repair.OutcomeWouldFix, report.Outcomes[0].Status)
}

func TestExecuteHumanReportWithFailures(t *testing.T) {
	runner := &stubRunner{report: sampleReport()}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := Execute(context.Background(), runner, Options{ContinueOnError: true, Actor: 1, Stdout: stdout, Stderr: stderr})

	require.Equal(t, exitFailure, code)
	out := stdout.String()
	require.Contains(t, out, "mode: apply")
	require.Contains(t, out, "source=20 linked=21")
	require.Contains(t, out, `error="folio locked"`)
	require.Contains(t, out, "found 2, fixed 1, skipped 0, failed 1")
}

func TestExecuteAbortStillPrintsReport(t *testing.T) {
	runner := &stubRunner{report: sampleReport(), err: repair.ErrAborted}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := Execute(context.Background(), runner, Options{Actor: 1, Stdout: stdout, Stderr: stderr})

	require.Equal(t, exitFailure, code)
	require.Contains(t, stdout.String(), "found 2")
	require.Contains(t, stderr.String(), "aborted")
}

func TestExecuteSetupError(t *testing.T) {
	runner := &stubRunner{err: errors.New("connection refused")}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := Execute(context.Background(), runner, Options{Stdout: stdout, Stderr: stderr})

	require.Equal(t, exitUsage, code)
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "connection refused")
}
