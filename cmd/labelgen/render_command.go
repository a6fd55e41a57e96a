package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ryabkov82/um-label-server/internal/config"
	"github.com/ryabkov82/um-label-server/internal/ingest"
)

type renderOptions struct {
	input   string
	profile string
	mapping string
	out     string
	report  string
	workers int
}

func newRenderCommand(newLogger func(*cobra.Command) (*logrus.Logger, error)) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a table into a ZIP archive of PNG labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			return runRender(cmd, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.input, "input", "", "Input table (.csv, .txt or .xml)")
	flags.StringVar(&opts.profile, "profile", "", "Label profile (TOML)")
	flags.StringVar(&opts.mapping, "mapping", "", "Mapping file (.json or .csv) overriding the profile mapping")
	flags.StringVar(&opts.out, "out", "", "Output ZIP archive")
	flags.StringVar(&opts.report, "report", "", "Write the JSON report to this file")
	flags.IntVar(&opts.workers, "workers", 0, "Render workers (default: number of CPUs)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runRender(cmd *cobra.Command, opts renderOptions, log logrus.FieldLogger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	profile, err := config.LoadProfile(opts.profile)
	if err != nil {
		return err
	}
	mappingCfg := profile.Mapping
	if opts.mapping != "" {
		override, err := ingest.LoadMappingFile(opts.mapping)
		if err != nil {
			return err
		}
		mappingCfg = ingest.OverlayMapping(mappingCfg, override)
	}

	mapping, required, err := ingest.MappingFromConfig(mappingCfg)
	if err != nil {
		return err
	}
	spec, err := ingest.SpecFromConfig(profile.Label)
	if err != nil {
		return err
	}

	timings := ingest.NewTimings()
	start := time.Now()
	table, err := ingest.ReadTable(ctx, opts.input, profile.Table)
	timings.Since(ingest.TimingRead, start)
	if err != nil {
		return fmt.Errorf("%w: %v", ingest.ErrReadFailed, err)
	}

	runner := &ingest.Runner{
		Workers:  opts.workers,
		Required: required,
		Logger:   log,
		Timings:  timings,
	}
	res, err := runner.Run(ctx, table, mapping, spec)
	if err != nil {
		return err
	}

	archiveName := filepath.Base(opts.out)
	start = time.Now()
	data, archiveErr := ingest.BuildArchive(res.Labels())
	timings.Since(ingest.TimingArchive, start)
	if archiveErr == nil {
		if err := os.WriteFile(opts.out, data, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
	} else {
		archiveName = ""
	}

	if opts.report != "" {
		pkg := strings.TrimSuffix(filepath.Base(opts.input), filepath.Ext(opts.input))
		report := ingest.NewReport(uuid.NewString(), pkg, archiveName, res, time.Now())
		if archiveErr != nil {
			report.Errors = append(report.Errors, ingest.ErrorItem{
				Stage:   "archive",
				Code:    string(ingest.KindOf(archiveErr)),
				Message: archiveErr.Error(),
				TS:      time.Now().UTC().Format(time.RFC3339),
			})
		}
		if err := report.WriteFile(opts.report); err != nil {
			return err
		}
	}

	rendered, failed := res.Counts()
	if failed > 0 {
		fmt.Fprintln(out, renderFailures(res.Failures()))
	}
	if archiveErr != nil {
		return archiveErr
	}

	fmt.Fprintf(out, "Rendered %d of %d labels into %s (%s)\n",
		rendered, rendered+failed, opts.out, humanize.Bytes(uint64(len(data))))
	log.WithField("timings", timings.String()).Debug("stage timings")
	return nil
}
