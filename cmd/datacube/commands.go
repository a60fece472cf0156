package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire frames, build the datacube and write it as FITS",
	Long: `Acquire frames, build the datacube and write it as FITS.

Archive exports are requested as uncompressed FITS. Local folders must hold
uncompressed images too; *.fits files and their numbered copies are read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Export and download the configured request without assembling",
	Long: `Export and download the configured request without assembling.

Frames are exported as uncompressed FITS (protocol "FITS,**NONE**"); the
frame loader does not read tile-compressed images.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("Frames downloaded",
			zap.String("directory", res.Directory),
			zap.Int("files", len(res.Outcomes)),
			zap.Int("missing", len(res.Report.Missing)),
			zap.String("ledger", res.LedgerPath))
		fmt.Fprintln(cmd.OutOrStdout(), res.Directory)
		return nil
	},
}

var assembleFolder string

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Build the datacube from a folder of local frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := assembleFolder
		if dir == "" {
			dir = cfg.FolderPath
		}
		if dir == "" {
			return fmt.Errorf("no frame folder given (use --folder or folder_path)")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		path, frames, err := a.pipeline.AssembleAndWrite(cmd.Context(), dir)
		if err != nil {
			return err
		}
		logger.Info("Datacube written", zap.String("path", path), zap.Int("frames", frames))
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Export the configured request and report missing records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, files, err := a.pipeline.Gaps(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d records, %d missing\n", report.RequestName, len(report.RecordTimes), len(report.Missing))
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil
	},
}

var (
	expectedFiles int
	queriesOutDir string
)

var checkQueriesCmd = &cobra.Command{
	Use:   "check-queries [queries-file]",
	Short: "Export each query and sort them by completeness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := pipeline.ReadLines(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		check, err := a.pipeline.CheckQueries(cmd.Context(), queries, expectedFiles, queriesOutDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d complete, %d incomplete\n", len(check.Complete), len(check.Incomplete))
		return nil
	},
}

var queriesFromDatesCmd = &cobra.Command{
	Use:   "queries-from-dates [dates-file]",
	Short: "Turn YYYYMMDD dates into one-day Dopplergram queries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, queries, err := pipeline.WriteQueriesFromDates(args[0], queriesOutDir)
		if err != nil {
			return err
		}
		logger.Info("Queries written", zap.String("path", out), zap.Int("queries", len(queries)))
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	assembleCmd.Flags().StringVar(&assembleFolder, "folder", "", "folder of frame files (defaults to folder_path)")

	checkQueriesCmd.Flags().IntVar(&expectedFiles, "expected", pipeline.DefaultExpectedFileCount, "files a complete query returns")
	checkQueriesCmd.Flags().StringVarP(&queriesOutDir, "out", "o", ".", "directory for the result files")
	queriesFromDatesCmd.Flags().StringVarP(&queriesOutDir, "out", "o", ".", "directory for the generated queries")
}
