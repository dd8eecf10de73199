package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/japaniel/codeclass/pkg/config"
	"github.com/japaniel/codeclass/pkg/db"
	"github.com/japaniel/codeclass/pkg/labels"
	"github.com/japaniel/codeclass/pkg/logging"
	"github.com/japaniel/codeclass/pkg/metrics"
	"github.com/japaniel/codeclass/pkg/pipeline"
)

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	cfgFile  string
	cfg      config.Config
	log      *logrus.Logger
	closeLog func() error
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	a := &app{}

	cmd := &cobra.Command{
		Use:           "codeclass",
		Short:         "Source code language classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: a.cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			a.cfg = loaded

			a.log, a.closeLog, err = logging.New(logging.Options{
				Level:  loaded.Log.Level,
				Format: loaded.Log.Format,
				File:   loaded.Log.File,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			a.registry = prometheus.NewRegistry()
			a.metrics, err = metrics.New(a.registry)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTrainCmd(a))
	cmd.AddCommand(newTestCmd(a))
	cmd.AddCommand(newPredictCmd(a))
	cmd.AddCommand(newAnalyzeCmd(a))
	for _, sub := range cmd.Commands() {
		a.finishAfter(sub)
	}

	return cmd
}

// finishAfter wraps the RunE of cmd so the metrics file and the log sink are
// handled whether or not the command fails.
func (a *app) finishAfter(cmd *cobra.Command) {
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if ferr := a.finish(); ferr != nil && err == nil {
				err = ferr
			}
		}()
		return run(cmd, args)
	}
}

// finish writes the metrics file, if configured, and closes the log sink.
func (a *app) finish() error {
	var err error
	if path := a.cfg.Paths.Metrics; path != "" && a.registry != nil {
		err = metrics.WriteTextfile(path, a.registry)
	}
	if a.closeLog != nil {
		if cerr := a.closeLog(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// open loads the language map and the store and returns a ready pipeline
// together with a function that closes the store.
func (a *app) open() (*pipeline.Pipeline, func(), error) {
	m, err := labels.Load(a.cfg.Paths.Languages)
	if err != nil {
		return nil, nil, err
	}
	if dir := filepath.Dir(a.cfg.Paths.Store); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	conn, err := db.Open(a.cfg.Paths.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", a.cfg.Paths.Store, err)
	}

	p := pipeline.New(a.cfg, m, conn)
	p.Logger = a.log
	p.Metrics = a.metrics
	return p, func() { conn.Close() }, nil
}
