package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	cronConfig "github.com/usgs-eros/espa-cron/go/cron/config"
	"github.com/usgs-eros/espa-cron/go/cron/logs"
	"github.com/usgs-eros/espa-cron/go/cron/settings"
)

func loadSettings(cmd *cobra.Command, path string) (*settings.Settings, error) {
	cfg := cronConfig.GetConfig()
	return settings.Loader{Strict: cfg.Strict}.Load(cmd.Context(), path)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Checks that a settings file has every section and key, and that the limits are positive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := settingsPath(args, 0)
			out := cmd.OutOrStdout()

			s, err := loadSettings(cmd, path)
			if err != nil {
				problems := settings.Problems(err)
				for _, problem := range problems {
					_, _ = fmt.Fprintf(out, "  - %v\n", problem)
				}

				return errors.Errorf("%s: %d problem(s) found", path, len(problems))
			}

			_, err = fmt.Fprintf(out, "OK %s: max_jobs=%d timeout=%dms priorities=%d queues=%d\n", path,
				s.Hadoop.MaxJobs, s.Hadoop.TimeoutMillis(), s.QueueMapping.Len(), len(s.QueueMapping.Queues()))
			return err
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [FILE]",
		Short: "Prints a settings file in canonical form (ini, json or yaml, see --cron.output)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, settingsPath(args, 0))
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), s, cronConfig.GetConfig().Output)
		},
	}
}

func render(out io.Writer, s *settings.Settings, format string) error {
	switch format {
	case "", "ini":
		_, err := s.WriteTo(out)
		return err
	case "json":
		raw, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, string(raw))
		return err
	case "yaml":
		raw, err := yaml.Marshal(s)
		if err != nil {
			return err
		}

		_, err = out.Write(raw)
		return err
	}

	return errors.Errorf("unsupported output format [%s]", format)
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue PRIORITY [FILE]",
		Short: "Prints the Hadoop queue a priority label maps to",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, settingsPath(args, 1))
			if err != nil {
				return err
			}

			queue, err := s.QueueMapping.Resolve(args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), queue)
			return err
		},
	}
}

func newTouchLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch-logs [FILE]",
		Short: "Creates the disposition, cron and plot logs if missing and writes a line to each",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := cronConfig.GetConfig()
			s, err := loadSettings(cmd, settingsPath(args, 0))
			if err != nil {
				return err
			}

			sinks, err := logs.Open(ctx, s.Logging, logs.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}

			for _, sink := range logs.AllSinks {
				sinks.Logger(sink).WithField("sink", sink.String()).Info("log destination checked by espa-cron")
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", sink, sinks.Path(sink))
			}

			if err := sinks.Close(); err != nil {
				logger.Warnf(ctx, "Failed to close log sinks: %v", err)
				return err
			}

			return nil
		},
	}
}
