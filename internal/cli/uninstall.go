package cli

import (
	"fmt"

	"github.com/kem-a/e-webapp/internal/install"
	"github.com/spf13/cobra"
)

func newUninstallCommand(st *state) *cobra.Command {
	var appImage bool

	cmd := &cobra.Command{
		Use:   "uninstall <App>",
		Short: "Remove an installed application",
		Args:  exactArgs(1, "<App> [--appimage]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.setup(); err != nil {
				return err
			}
			layout, err := install.DefaultLayout()
			if err != nil {
				return err
			}

			removed, err := install.New(layout, st.logger).Uninstall(args[0], appImage)
			if err != nil {
				return err
			}
			for _, p := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s uninstalled successfully.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&appImage, "appimage", false, "Remove the AppImage install instead of the native one")
	return cmd
}
