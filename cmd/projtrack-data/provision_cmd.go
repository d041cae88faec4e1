package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create or extend the canonical tables on the primary store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

type provisionSummary struct {
	Command string        `json:"command"`
	Store   string        `json:"store"`
	Schema  schema.Report `json:"schema"`
}

func runProvision(ctx context.Context, a *app, out io.Writer) error {
	s, err := a.openPrimary(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	report, err := provision(ctx, a, s)
	if err != nil {
		return err
	}
	return writeJSONLine(out, provisionSummary{
		Command: "provision",
		Store:   store.Describe(a.conf.Database.URL, a.conf.Database.LocalPath),
		Schema:  report,
	})
}

func provision(ctx context.Context, a *app, s store.Store) (schema.Report, error) {
	report, err := schema.NewProvisioner(a.log("provision").WithField("dialect", s.Dialect())).EnsureSchema(ctx, s)
	if err != nil {
		return report, withCode(exitDB, fmt.Errorf("provision %s store: %w", s.Dialect(), err))
	}
	return report, nil
}
