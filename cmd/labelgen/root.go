package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ryabkov82/um-label-server/internal/logging"
	"github.com/ryabkov82/um-label-server/internal/version"
)

func newRootCommand() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "labelgen",
		Short:         "Render EAN-13 product labels",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	newLogger := func(cmd *cobra.Command) (*logrus.Logger, error) {
		cfg := logging.Default()
		cfg.Level = logLevel
		return logging.New(cfg, cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(newRenderCommand(newLogger))
	rootCmd.AddCommand(newEncodeCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	})

	return rootCmd
}
