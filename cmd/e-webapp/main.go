// Command e-webapp packages web pages as Linux desktop applications.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kem-a/e-webapp/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, cli.Options{}))
}

func run(args []string, stdout, stderr io.Writer, opts cli.Options) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, cli.NewRootCommand(opts), args, stdout, stderr)
}
