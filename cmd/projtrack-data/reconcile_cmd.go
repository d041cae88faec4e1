package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/modules/projects/services"
)

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [source]",
		Short: "Compare source aggregates with the primary store; exit 6 on mismatch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sourcePath(a, args)
			if err != nil {
				return err
			}
			return runReconcile(cmd.Context(), a, path, cmd.OutOrStdout())
		},
	}
}

type reconcileSummary struct {
	Command string `json:"command"`
	Source  string `json:"source"`
	services.Report
}

func runReconcile(ctx context.Context, a *app, path string, out io.Writer) error {
	s, err := a.openPrimary(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p, err := newPipeline(a, s, "reconcile")
	if err != nil {
		return err
	}
	report, err := p.Reconcile(ctx, path)
	if err != nil {
		if is(err, services.ErrFatalInput) {
			return withCode(exitInput, err)
		}
		return withCode(exitDB, err)
	}
	if err := writeJSONLine(out, reconcileSummary{Command: "reconcile", Source: path, Report: report}); err != nil {
		return err
	}
	if !report.Matches {
		return withCode(exitMismatch, services.ErrReconciliationMismatch)
	}
	return nil
}
