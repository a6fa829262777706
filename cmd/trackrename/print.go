package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/internal/pipeline"
	"trackrename/internal/report"
	"trackrename/internal/shutdown"
)

func newPrintCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print [directory]",
		Short: "List the tags of every audio file without changing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			sh := shutdown.New()
			sh.Listen()
			defer sh.Shutdown()

			log := logger.NewWithWriter(cfg.Verbose, cmd.OutOrStdout(), cmd.ErrOrStderr())
			defer log.Close()

			entries, err := pipeline.List(sh.Context(), cfg, log, metadata.NewTagStore(cfg.TagBackend))
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No audio files found in %s\n", cfg.Root)
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, report.Tracks(entries, cfg.Root))
			fmt.Fprint(out, report.Extensions(entries))
			if cfg.Verbose {
				fmt.Fprint(out, report.TagVersions(entries))
			}
			return nil
		},
	}
}
