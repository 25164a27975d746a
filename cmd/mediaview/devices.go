package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediaview"
)

func devicesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the virtual capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := mediaview.NewPatternDeviceProvider(a.settings.Camera.PatternConfig())
			devices, err := mediaview.NewMediaDevices(provider).EnumerateDevices(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tID\tLABEL")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Kind, d.DeviceID, d.Label)
			}
			return w.Flush()
		},
	}
}
