// api/main.go
package main

import (
	"os"

	goflags "github.com/jessevdk/go-flags"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run parses args and executes the selected command. With no command the
// HTTP server is started.
func run(args []string) error {
	parser, cmds := buildParser()

	_, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}

	if parser.Active == nil {
		return cmds.Serve.Execute(nil)
	}
	return nil
}

type commands struct {
	Serve        *ServeCommand
	Migrate      *MigrateCommand
	RebuildDaily *RebuildDailyCommand
	Prune        *PrunePresenceCommand
}

func buildParser() (*goflags.Parser, *commands) {
	parser := goflags.NewNamedParser("postviews", goflags.Default)
	parser.LongDescription = "View tracking and analytics API for the blog platform."
	parser.SubcommandsOptional = true

	cmds := &commands{
		Serve:        &ServeCommand{},
		Migrate:      &MigrateCommand{},
		RebuildDaily: &RebuildDailyCommand{},
		Prune:        &PrunePresenceCommand{},
	}

	parser.AddCommand("serve", "Start the HTTP API", "Apply migrations and start the HTTP API (default command).", cmds.Serve)
	parser.AddCommand("migrate", "Apply database migrations", "Apply pending schema migrations and exit.", cmds.Migrate)
	parser.AddCommand("rebuild-daily", "Recompute daily stats", "Recompute the daily_stats roll-up for one UTC day. Safe to run repeatedly.", cmds.RebuildDaily)
	parser.AddCommand("prune-presence", "Delete stale presence rows", "Delete active viewer rows whose last heartbeat is older than the cutoff.", cmds.Prune)

	return parser, cmds
}
