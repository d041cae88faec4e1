package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/pkg/replication"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

func newReplicateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replicate",
		Short: "Copy the primary store into TARGET_DATABASE_URL, keeping ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplicate(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

type replicateSummary struct {
	Command string                   `json:"command"`
	Source  string                   `json:"source"`
	Target  string                   `json:"target"`
	Schema  schema.Report            `json:"schema"`
	Result  replication.Result       `json:"result"`
	Verify  replication.VerifyResult `json:"verify"`
}

func runReplicate(ctx context.Context, a *app, out io.Writer) error {
	db := a.conf.Database
	if strings.TrimSpace(db.TargetURL) == "" {
		return withCode(exitUsage, fmt.Errorf("TARGET_DATABASE_URL is required"))
	}
	if strings.TrimSpace(db.TargetURL) == strings.TrimSpace(db.URL) {
		return withCode(exitUsage, fmt.Errorf("TARGET_DATABASE_URL must differ from DATABASE_URL"))
	}

	r, err := replication.NewReplicator(replication.Options{
		Rate:        a.conf.Replication.Rate,
		BatchSize:   a.conf.Replication.BatchSize,
		BatchDelay:  a.conf.Replication.BatchDelay,
		MaxAttempts: a.conf.Replication.MaxAttempts,
		MaxBackoff:  a.conf.Replication.MaxBackoff,
		Logger:      a.log("replicate"),
	})
	if err != nil {
		return withCode(exitUsage, err)
	}

	source, err := a.openPrimary(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()
	target, err := openStore(ctx, db.TargetURL, "")
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	summary := replicateSummary{
		Command: "replicate",
		Source:  store.Describe(db.URL, db.LocalPath),
		Target:  store.Describe(db.TargetURL, ""),
	}
	if summary.Schema, err = provision(ctx, a, target); err != nil {
		return err
	}

	tables := a.conf.Replication.TableOrder()
	summary.Result, err = r.Replicate(ctx, source, target, tables)
	if err != nil {
		_ = writeJSONLine(out, summary)
		if is(err, replication.ErrUnknownTable) {
			return withCode(exitUsage, err)
		}
		return withCode(exitDBWrite, fmt.Errorf("replicate: %w", err))
	}

	summary.Verify, err = replication.Verify(ctx, source, target, tables)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("verify: %w", err))
	}
	if !summary.Verify.Complete() {
		a.log("replicate").WithField("differences", len(summary.Verify.Differences)).Warn("target differs from source")
	}
	return writeJSONLine(out, summary)
}
