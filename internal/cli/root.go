package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kem-a/e-webapp/internal/httpclient"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the e-webapp command tree.
func NewRootCommand(opts Options) *cobra.Command {
	st := newState(opts)

	root := &cobra.Command{
		Use:   "e-webapp",
		Short: "Package web pages as Linux desktop applications",
		Long: `e-webapp wraps a web page in an Electron shell and installs it as a
desktop application, either natively or as a portable AppImage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBuildAppImageCommand(st),
		newCreateCommand(st),
		newMetadataCommand(st),
		newUninstallCommand(st),
		newVersionCommand(),
	)
	return root
}

// NewBuildAppImageCommand builds the standalone build-appimage command.
func NewBuildAppImageCommand(opts Options) *cobra.Command {
	cmd := newBuildAppImageCommand(newState(opts))
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

// Execute runs cmd with args and returns the process exit status. Usage
// errors print the usage line; other errors print "Error: ...".
func Execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var usage *UsageError
	if errors.As(err, &usage) {
		fmt.Fprintln(stderr, usage.Error())
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCode(err)
}

// exactArgs is cobra.ExactArgs reporting a UsageError built from the
// command path and argsUsage.
func exactArgs(n int, argsUsage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &UsageError{Usage: cmd.CommandPath() + " " + argsUsage}
		}
		return nil
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "e-webapp %s\n", httpclient.Version)
		},
	}
}
