package main

import (
	"os"

	"github.com/tomm2000/swirlc"
	"github.com/tomm2000/swirlc/cli"
)

func main() {
	if err := cli.App().Run(os.Args); err != nil {
		swirlc.Logger.Error().Err(err).Msg("swirlc exited with an error")
		os.Exit(1)
	}
}
