package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/device"
)

type companyEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Detected bool   `json:"detected"`
}

func newCompaniesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "companies",
		Short: "List the manufacturer identifiers nearby knows about",
		Long: `List the Bluetooth SIG company identifiers with a known vendor name.

DETECTED marks identifiers that classify a device as smart glasses on their own;
the others are only used to name the vendor in detection events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
			}
			cmd.SilenceUsage = true

			entries := make([]companyEntry, 0)
			for _, c := range device.KnownCompanies() {
				entries = append(entries, companyEntry{
					ID:       device.FormatCompanyID(c.ID),
					Name:     c.Name,
					Detected: detect.IsTargetCompany(c.ID),
				})
			}

			if format == "json" {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDETECTED")
			for _, e := range entries {
				detected := "no"
				if e.Detected {
					detected = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Name, detected)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}
