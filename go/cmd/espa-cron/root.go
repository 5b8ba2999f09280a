package main

import (
	"context"

	"github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/config/viper"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cronConfig "github.com/usgs-eros/espa-cron/go/cron/config"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "espa-cron",
		Short:         "Checks and prints the settings file read by the ESPA processing cron",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig(cmd.Context(), cmd.Flags())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"YAML file overriding the cron, logger and other registered config sections")

	// Registers the pflags of every config section so they show up in --help.
	viper.NewAccessor(config.Options{}).InitializePflags(cmd.PersistentFlags())

	cmd.AddCommand(
		newValidateCmd(),
		newShowCmd(),
		newQueueCmd(),
		newTouchLogsCmd(),
	)

	return cmd
}

func (o *rootOptions) initConfig(ctx context.Context, flags *pflag.FlagSet) error {
	if ctx == nil {
		ctx = context.Background()
	}

	accessor := viper.NewAccessor(config.Options{
		StrictMode:  true,
		SearchPaths: []string{o.configFile},
	})

	accessor.InitializePflags(flags)
	if err := accessor.UpdateConfig(ctx); err != nil {
		return err
	}

	logger.Debugf(ctx, "Using config files [%v], settings file [%s]", accessor.ConfigFilesUsed(),
		cronConfig.GetConfig().SettingsFile)
	return nil
}

// settingsPath returns the settings file given as the positional argument at index, or the configured one.
func settingsPath(args []string, index int) string {
	if len(args) > index && len(args[index]) > 0 {
		return args[index]
	}

	return cronConfig.GetConfig().SettingsFile
}
