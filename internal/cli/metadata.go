package cli

import (
	"fmt"
	"os"

	"github.com/kem-a/e-webapp/internal/config"
	"github.com/kem-a/e-webapp/internal/webmeta"
	"github.com/spf13/cobra"
)

func newMetadataCommand(st *state) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "metadata <url>",
		Short: "Write webpage_meta.json for a page",
		Args:  exactArgs(1, "<url>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateURL(args[0]); err != nil {
				return err
			}
			if err := st.setup(); err != nil {
				return err
			}

			md, err := webmeta.New(st.http, st.logger).Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			path, err := md.Save(outDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:       %s\n", md.Title)
			fmt.Fprintf(out, "Description: %s\n", md.Description)
			fmt.Fprintf(out, "Keywords:    %s\n", md.Keywords)
			fmt.Fprintf(out, "Icon:        %s\n", md.IconURL)
			fmt.Fprintf(out, "Metadata written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Directory to write webpage_meta.json into")
	return cmd
}
