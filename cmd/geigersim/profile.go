package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/srg/geigersim/internal/peripheral"
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the GATT services the sensor publishes",
	Long: `Prints the services and characteristics published on every advertising
start, without touching a radio.

Examples:
  geigersim profile
  geigersim profile --json`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

var profileJSON bool

func init() {
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "Output as JSON")
}

func runProfile(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	services := peripheral.NewServiceCatalog().Describe()
	out := cmd.OutOrStdout()

	if profileJSON {
		data, err := json.MarshalIndent(services, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	writeProfile(out, services, colorEnabled(cmd, out))
	return nil
}

func writeProfile(w io.Writer, services []peripheral.ServiceDescription, useColor bool) {
	header := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)
	if useColor {
		header.EnableColor()
		faint.EnableColor()
	} else {
		header.DisableColor()
		faint.DisableColor()
	}

	for i, svc := range services {
		if i > 0 {
			fmt.Fprintln(w)
		}
		kind := "secondary"
		if svc.Primary {
			kind = "primary"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", header.Sprint("Service"), shortUUID(svc.UUID), svc.Name+", "+kind)
		for _, c := range svc.Characteristics {
			fmt.Fprintf(w, "  %s %s [%s]\n", shortUUID(c.UUID), c.Name, strings.Join(c.Properties, ", "))
			fmt.Fprintf(w, "    %s %s\n", faint.Sprint("permissions:"), strings.Join(c.Permissions, ", "))
			if c.Description != "" {
				fmt.Fprintf(w, "    %s %s\n", faint.Sprint("description:"), c.Description)
			}
		}
	}
}

func shortUUID(s string) string {
	id, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return peripheral.ShortUUID(id)
}
