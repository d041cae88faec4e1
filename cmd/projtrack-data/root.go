package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/projtrack/pkg/configuration"
	"github.com/iota-uz/projtrack/pkg/store"
)

// app carries what every subcommand needs once the configuration is loaded.
type app struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
}

func (a *app) log(command string) *logrus.Entry {
	return a.logger.WithField("command", command)
}

// openPrimary opens the store selected by DATABASE_URL, or the local file.
func (a *app) openPrimary(ctx context.Context) (store.Store, error) {
	db := a.conf.Database
	if db.IsLocal() {
		a.logger.WithField("path", db.LocalPath).Debug("DATABASE_URL unset, using local sqlite store")
	}
	return openStore(ctx, db.URL, db.LocalPath)
}

func openStore(ctx context.Context, url, localPath string) (store.Store, error) {
	s, err := store.Open(ctx, url, localPath)
	if err != nil {
		if is(err, store.ErrUnsupportedURL) {
			return nil, withCode(exitUsage, err)
		}
		return nil, withCode(exitDB, fmt.Errorf("open %s: %w", store.Describe(url, localPath), err))
	}
	return s, nil
}

func (a *app) flushMetrics() {
	if a.conf == nil || a.conf.MetricsTextfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(a.conf.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
		a.logger.WithError(err).Warn("metrics textfile not written")
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "projtrack-data",
		Short:         "Project tracker data pipeline: provision, import, replicate, reconcile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.New(configuration.DefaultEnvFiles)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("configuration: %w", err))
			}
			a.conf = conf
			a.logger = conf.Logger()
			return nil
		},
	}

	cmd.AddCommand(newProvisionCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newReplicateCmd(a))
	cmd.AddCommand(newReconcileCmd(a))
	cmd.AddCommand(newClearCmd(a))
	return cmd
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	a.flushMetrics()
	if err == nil {
		return exitOK
	}

	var ce *cliError
	if !as(err, &ce) {
		// Anything cobra rejects before a command runs is a usage error.
		err = withCode(exitUsage, err)
	}
	fmt.Fprintln(stderr, err.Error())
	return exitCode(err)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
