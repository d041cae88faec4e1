package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/projtrack/modules/projects/infrastructure/source"
	"github.com/iota-uz/projtrack/modules/projects/services"
	"github.com/iota-uz/projtrack/pkg/store"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [source]",
		Short: "Load a workbook or JSON export into the primary store",
		Long: "Reads every row of the source (argument or IMPORT_SOURCE), maps it onto the " +
			"canonical project record and upserts it by business key. Row failures are " +
			"reported and do not change the exit code.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sourcePath(a, args)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), a, path, cmd.OutOrStdout())
		},
	}
}

func sourcePath(a *app, args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if p := strings.TrimSpace(a.conf.Import.Source); p != "" {
		return p, nil
	}
	return "", withCode(exitUsage, fmt.Errorf("no source: pass a path or set IMPORT_SOURCE"))
}

func newPipeline(a *app, s store.Store, command string) (*services.Pipeline, error) {
	p, err := services.NewPipeline(services.PipelineOptions{
		Store:      s,
		Repository: persistence.NewProjectRepository(s),
		Load:       source.Load,
		BatchSize:  a.conf.Import.BatchSize,
		KeyField:   a.conf.Import.BusinessKey,
		Tolerance:  decimal.NewFromFloat(a.conf.Reconcile.Tolerance),
		Logger:     a.log(command),
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return p, nil
}

type importSummary struct {
	Command   string `json:"command"`
	Succeeded int    `json:"succeeded"`
	services.RunResult
}

func runImport(ctx context.Context, a *app, path string, out io.Writer) error {
	s, err := a.openPrimary(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p, err := newPipeline(a, s, "import")
	if err != nil {
		return err
	}
	res, runErr := p.Run(ctx, path)
	if err := writeJSONLine(out, importSummary{Command: "import", Succeeded: res.Result.Succeeded(), RunResult: res}); err != nil {
		return err
	}
	if runErr != nil {
		return withCode(runExitCode(res, runErr), runErr)
	}
	return nil
}

func runExitCode(res services.RunResult, err error) int {
	switch {
	case is(err, services.ErrFatalInput):
		return exitInput
	case res.AbortedIn == services.StateLoading:
		return exitDBWrite
	default:
		return exitDB
	}
}
