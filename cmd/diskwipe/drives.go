package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"diskwipe/internal/catalog"
	"diskwipe/internal/security"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List physical drives",
	Args:  cobra.NoArgs,
	RunE:  runDrives,
}

func init() {
	drivesCmd.Flags().Bool("json", false, "Print drives as JSON")
	rootCmd.AddCommand(drivesCmd)
}

func runDrives(cmd *cobra.Command, _ []string) error {
	drives, err := newCatalog().List(cmd.Context())
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(drives)
	}
	printDrives(cmd.OutOrStdout(), drives, security.NewPolicy(cfg))
	return nil
}

func printDrives(out io.Writer, drives []catalog.Drive, policy *security.Policy) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tMODEL\tSIZE\tUSED\tFREE\tFILESYSTEMS\tSTATUS")
	for _, d := range drives {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Model, humanBytes(d.TotalBytes), humanBytes(d.UsedBytes), humanBytes(d.FreeBytes),
			strings.Join(d.Filesystems, ","), driveStatus(d, policy))
	}
	_ = tw.Flush()
}

func driveStatus(d catalog.Drive, policy *security.Policy) string {
	switch {
	case d.IsSystemDisk:
		return color.RedString("system disk")
	case policy.ShouldSkipDisk(d):
		return color.YellowString("excluded")
	default:
		return color.GreenString("available")
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
