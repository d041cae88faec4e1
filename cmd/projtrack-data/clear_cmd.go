package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/projtrack/pkg/schema"
)

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every project row (and its attachments) from the primary store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

type clearSummary struct {
	Command string `json:"command"`
	Deleted int64  `json:"deleted"`
}

func runClear(ctx context.Context, a *app, out io.Writer) error {
	s, err := a.openPrimary(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	exists, err := s.TableExists(ctx, schema.Projects)
	if err != nil {
		return withCode(exitDB, err)
	}
	var deleted int64
	if exists {
		deleted, err = persistence.NewProjectRepository(s).Clear(ctx)
		if err != nil {
			return withCode(exitDBWrite, err)
		}
	}
	a.log("clear").WithField("deleted", deleted).Warn("projects cleared")
	return writeJSONLine(out, clearSummary{Command: "clear", Deleted: deleted})
}
