package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoungMasterGandalf/thesis-work/internal/catalog"
	"github.com/YoungMasterGandalf/thesis-work/internal/fitsframe"
	"github.com/YoungMasterGandalf/thesis-work/internal/ledger"
	"github.com/YoungMasterGandalf/thesis-work/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the most recent catalogued runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Catalog.Enabled {
			return errors.New("catalog is not enabled (set catalog.enabled or DATACUBE_CATALOG_DATABASE)")
		}
		c, err := catalog.NewClient(cfg.CatalogMap(), logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to create catalog client: %w", err)
		}
		defer c.Close()

		runs, err := c.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tFRAMES\tMISSING\tOUTPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Frames, r.MissingFrames, r.OutputPath)
		}
		return w.Flush()
	},
}

var objectsCmd = &cobra.Command{
	Use:   "objects [run-id]",
	Short: "List the files published for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.S3.Enabled {
			return errors.New("object storage is not enabled (set s3.enabled)")
		}
		s, err := store.NewClient(cfg.S3Map(), logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}

		objects, err := s.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, o := range objects {
			fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.ModifiedTime.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger [file]",
	Short: "Print the download ledger written by fetch or run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomes, err := ledger.Read(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORD\tFILE\tATTEMPTS\tBYTES\tDURATION")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", o.RecordName, o.LocalPath, o.Attempts, o.Bytes, o.Duration)
		}
		return w.Flush()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [datacube.fits]",
	Short: "Print the dimensions and header of a written datacube",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cube, hdr, err := fitsframe.ReadDatacube(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frames=%d rows=%d cols=%d\n", cube.Frames, cube.Rows, cube.Cols)
		for _, key := range hdr.Keys() {
			if card := hdr.Get(key); card != nil {
				fmt.Fprintf(out, "%-8s = %v\n", key, card.Value)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list")
	rootCmd.AddCommand(runsCmd, objectsCmd, ledgerCmd, inspectCmd)
}
