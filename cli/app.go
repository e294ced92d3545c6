package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tomm2000/swirlc"
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/fatal"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

// App builds the swirlc command-line surface. --loc selects which
// location in the address directory this process plays; every other
// flag configures where that location's data lives (§6).
func App() *cli.App {
	return &cli.App{
		Name:  "swirlc",
		Usage: "run one location of a compiled choreography",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "loc",
				Usage:    "location name this process plays",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "directory",
				Usage:    "path to the address directory file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "root for received files and step working directories",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "override the bind address the directory file names for --loc",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	dir, err := addr.Load(c.String("directory"), c.String("loc"))
	if err != nil {
		return err
	}

	if listen := c.String("listen"); listen != "" {
		dir = dir.WithListenOverride(listen)
	}

	workdir, err := filepath.Abs(c.String("workdir"))
	if err != nil {
		return xerrors.Errorf("failed to canonicalize workdir: %v", err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return xerrors.Errorf("%w: failed to create %q: %v", fatal.ErrWorkdir, workdir, err)
	}

	runtime := NewRuntime(dir, nil, workdir)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		swirlc.Logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	runtime.Start(ctx)

	<-ctx.Done()
	return runtime.Stop()
}
