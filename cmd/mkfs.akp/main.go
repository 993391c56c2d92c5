package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-akpfs/util"
)

func main() {
	app := &cli.App{
		Name:  "mkfs.akp",
		Usage: "create and inspect AKPFS filesystems",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug print level",
			},
		},
		Commands: []*cli.Command{
			formatCommand,
			inspectCommand,
			lsCommand,
			catCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		util.Log.Error(err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration for a command: file, environment, then
// flags given on the command line.
func loadConfig(ctx *cli.Context) (*Config, error) {
	c, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("debug") {
		c.Debug = ctx.Uint64("debug")
	}
	for _, flag := range []struct {
		name string
		dst  *uint64
	}{
		{"block-size", &c.BlockSize},
		{"avg-file-size", &c.AvgFileSize},
	} {
		if ctx.IsSet(flag.name) {
			*flag.dst = ctx.Uint64(flag.name)
		}
	}
	if ctx.IsSet("no-seed") {
		c.NoSeed = ctx.Bool("no-seed")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.SetupLogging()
	return c, nil
}

func deviceArg(ctx *cli.Context) (string, error) {
	dev := ctx.Args().First()
	if dev == "" {
		return "", fmt.Errorf("missing DEVICE argument")
	}
	return dev, nil
}
