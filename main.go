package main

import (
	"os"
	"subuk/gamemango/bootstrap"
	"subuk/gamemango/util"

	"github.com/akamensky/argparse"
)

func main() {
	parser := argparse.NewParser("gamemango", "Gamemango game server manager")
	configFilename := parser.String("c", "config", &argparse.Options{
		Default: util.GetenvDefault("GAMEMANGO_CONFIG", "gamemango.conf"),
		Help:    "Configuration file path",
	})
	envFilename := parser.String("e", "env", &argparse.Options{
		Default: util.GetenvDefault("GAMEMANGO_ENV", ".env"),
		Help:    "Env file with secrets",
	})
	if err := parser.Parse(os.Args); err != nil {
		os.Stderr.WriteString(parser.Usage(err))
		os.Exit(1)
	}
	bootstrap.Main(*configFilename, *envFilename)
}
