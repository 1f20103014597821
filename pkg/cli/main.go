// Package cli implements the legalytics-jobs maintenance command. The job
// service itself is an embedded library; the CLI operates on a persistence
// root offline, without starting workers, to inspect, cancel, and groom
// persisted jobs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/legalytics/legalytics/pkg/config"
	"github.com/legalytics/legalytics/pkg/jobs"
	"github.com/legalytics/legalytics/pkg/observability/logger"
	"github.com/legalytics/legalytics/pkg/version"
)

const (
	serviceName = "legalytics-jobs"
	envPrefix   = "LEGALYTICS"
)

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile  string
	storageRoot string
	logLevel    string
}

func (o *rootOptions) bind(flags *pflag.FlagSet) {
	flags.StringVar(&o.configFile, "config", "", "path to configuration file")
	flags.StringVar(&o.storageRoot, "storage-root", "", "override the jobs storage root directory")
	flags.StringVar(&o.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
}

// NewRootCommand builds the legalytics-jobs command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Inspect and maintain the local job service persistence root",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root.PersistentFlags())

	root.AddCommand(
		newStatsCommand(opts),
		newListCommand(opts),
		newCancelCommand(opts),
		newCleanupCommand(opts),
		newVersionCommand(),
	)
	return root
}

// buildService loads configuration and constructs a job service over the
// persistence root. Workers are never started here.
func (o *rootOptions) buildService() (*jobs.Service, *config.Config, error) {
	cfg, err := config.NewViperLoader(o.configFile, envPrefix).Load()
	if err != nil {
		return nil, nil, err
	}
	if o.storageRoot != "" {
		cfg.Jobs.StorageRoot = o.storageRoot
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return nil, nil, err
	}

	store, err := jobs.NewFileStore(cfg.Jobs.StorageRoot, log)
	if err != nil {
		return nil, nil, err
	}
	svc, err := jobs.NewService(store, log, jobs.Config{
		Workers:          cfg.Jobs.Workers,
		QueueBuffer:      cfg.Jobs.QueueBuffer,
		PollTimeout:      cfg.Jobs.PollTimeout,
		StopTimeout:      cfg.Jobs.StopTimeout,
		RetryBackoffBase: cfg.Jobs.RetryBackoffBase,
		RetryBackoffMax:  cfg.Jobs.RetryBackoffMax,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics for the persisted jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := opts.buildService()
			if err != nil {
				return err
			}
			if err := svc.HealthCheck(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd, svc.Stats())
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var (
		statusFilter string
		taskFilter   string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := opts.buildService()
			if err != nil {
				return err
			}

			listOpts := jobs.ListOptions{TaskName: taskFilter, Limit: limit}
			if statusFilter != "" {
				status, err := jobs.ParseStatus(statusFilter)
				if err != nil {
					return err
				}
				listOpts.Status = status
			}
			return printJSON(cmd, svc.ListJobs(listOpts))
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (pending, running, completed, failed, retrying)")
	cmd.Flags().StringVar(&taskFilter, "task", "", "filter by task name")
	cmd.Flags().IntVar(&limit, "limit", jobs.DefaultListLimit, "maximum number of jobs to return")
	return cmd
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.buildService()
			if err != nil {
				return err
			}
			if !svc.CancelJob(args[0]) {
				return fmt.Errorf("job %s does not exist or is not pending", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled job %s\n", args[0])
			return nil
		},
	}
}

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old completed and failed jobs from memory and disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cfg, err := opts.buildService()
			if err != nil {
				return err
			}
			age := maxAge
			if age <= 0 {
				age = cfg.Jobs.CleanupMaxAge
			}
			removed, err := svc.CleanupOldJobs(context.Background(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d old jobs\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "age threshold for removal (default from config, e.g. 720h)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, version.Current(serviceName))
		},
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
