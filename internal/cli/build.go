package cli

import (
	"fmt"

	"github.com/kem-a/e-webapp/internal/appimage"
	"github.com/spf13/cobra"
)

func newBuildAppImageCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "build-appimage <input-directory> <output-file>",
		Short: "Build an AppImage from a directory",
		Long: `Compose <input-directory> into a squashfs image and prepend the AppImage
runtime, producing the executable <output-file>. The runtime is cached and
only downloaded again when the published copy is newer.`,
		Args: exactArgs(2, "<input-directory> <output-file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.setup(); err != nil {
				return err
			}
			ctx := cmd.Context()

			builder, err := st.builder(ctx)
			if err != nil {
				return err
			}

			res, err := builder.Build(ctx, appimage.Request{
				InputDir:   args[0],
				OutputPath: args[1],
				WorkDir:    st.settings.BuildDir,
			})
			if err != nil {
				return err
			}

			if res.Runtime.Downloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded runtime %s\n", res.Runtime.URL)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Using cached runtime %s\n", res.Runtime.Path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "AppImage created: %s (%d bytes)\n", res.OutputPath, res.Size)
			return nil
		},
	}
}
