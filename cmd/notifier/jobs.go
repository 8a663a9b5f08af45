// cmd/notifier/jobs.go
package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rating-notifier/internal/common/config"
)

func jobsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs and their effective schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return printJobs(cmd.OutOrStdout(), cfg)
		},
	}
}

func printJobs(out io.Writer, cfg *config.Config) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tENABLED\tINTERVAL\tBATCH\tLOCK TTL")
	for _, name := range config.JobNames {
		job := config.GetJobConfig(cfg, name)
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n",
			name,
			job.Enabled,
			config.GetDuration(job.Interval),
			job.BatchSize,
			config.GetDuration(job.LockTTL),
		)
	}
	return w.Flush()
}
