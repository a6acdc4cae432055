// Command ncolonyctl is the producer CLI: it writes ProcessSpec files into
// the configuration directory and Message files into the messages
// directory, the only two ways anything talks to ncolonyd.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&addCmd{}, "")
	subcommands.Register(&removeCmd{}, "")
	subcommands.Register(&restartCmd{}, "")
	subcommands.Register(&restartAllCmd{}, "")
	subcommands.Register(&restartGroupCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
