package main

import (
	"github.com/urfave/cli/v2"

	"github.com/blndgs/oprules/config"
)

type configFlagType struct {
	cli.PathFlag
}

var ConfigFlag = &configFlagType{
	cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file; defaults apply when omitted",
		EnvVars: []string{"OPRULES_CONFIG"},
	},
}

// Fetch loads the configuration file named by the flag, or the defaults.
func (f *configFlagType) Fetch(context *cli.Context) (*config.Config, error) {
	path := context.Path(f.Name)
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

type addrFlagType struct {
	cli.StringFlag
}

var AddrFlag = &addrFlagType{
	cli.StringFlag{
		Name:  "addr",
		Usage: "listen address, overrides server.addr of the configuration",
	},
}

func (f *addrFlagType) Fetch(context *cli.Context, cfg *config.Config) string {
	if addr := context.String(f.Name); addr != "" {
		return addr
	}
	return cfg.Server.Addr
}

type verboseFlagType struct {
	cli.BoolFlag
}

var VerboseFlag = &verboseFlagType{
	cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "print every violation of rejected operations",
	},
}

func (f *verboseFlagType) Fetch(context *cli.Context) bool {
	return context.Bool(f.Name)
}
