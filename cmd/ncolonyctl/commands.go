package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/ncolony/ncolony/internal/ncmsg"
)

// stringList collects repeated flag occurrences, e.g. repeated --arg or
// --env, in the order given.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// places are the two directories every subcommand operates on. Declared as
// global flags so they parse before the subcommand name, matching the
// producer's documented "-config DIR -messages DIR <subcommand> ..." surface.
var (
	configDir string
	messages  string
)

func init() {
	flag.StringVar(&configDir, "config", "", "configuration directory")
	flag.StringVar(&messages, "messages", "", "messages directory")
}

func requirePlaces() error {
	if configDir == "" || messages == "" {
		return fmt.Errorf("-config and -messages are required")
	}
	return nil
}

type addCmd struct {
	cmd        string
	args       stringList
	env        stringList
	envInherit stringList
	group      stringList
	uid        int
	gid        int
	extras     string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a process" }
func (*addCmd) Usage() string {
	return "add [flags] <name> -cmd <executable>\n"
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cmd, "cmd", "", "executable (required)")
	f.Var(&c.args, "arg", "argument (repeatable)")
	f.Var(&c.env, "env", "VAR=value (repeatable)")
	f.Var(&c.envInherit, "env-inherit", "VAR to inherit from the daemon's ambient environment (repeatable)")
	f.Var(&c.group, "group", "restart group membership (repeatable)")
	f.IntVar(&c.uid, "uid", -1, "uid to run as")
	f.IntVar(&c.gid, "gid", -1, "gid to run as")
	f.StringVar(&c.extras, "extras", "", "path to a JSON file of additional top-level keys")
}

func (c *addCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := requirePlaces(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	// Flags may also follow the name.
	if err := f.Parse(f.Args()[1:]); err != nil {
		return subcommands.ExitUsageError
	}
	if f.NArg() != 0 || c.cmd == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	details := map[string]any{"args": append([]string{c.cmd}, c.args...)}
	if len(c.env) > 0 {
		envMap := make(map[string]string, len(c.env))
		for _, kv := range c.env {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "invalid -env %q, want VAR=value\n", kv)
				return subcommands.ExitUsageError
			}
			envMap[k] = v
		}
		details["env"] = envMap
	}
	if len(c.envInherit) > 0 {
		details["env_inherit"] = []string(c.envInherit)
	}
	if len(c.group) > 0 {
		details["group"] = []string(c.group)
	}
	if c.uid >= 0 {
		details["uid"] = c.uid
	}
	if c.gid >= 0 {
		details["gid"] = c.gid
	}
	if c.extras != "" {
		raw, err := os.ReadFile(c.extras)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		for k, v := range extra {
			details[k] = v
		}
	}

	raw, err := json.Marshal(details)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := writeAtomic(configDir, name, raw); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type removeCmd struct{}

func (*removeCmd) Name() string             { return "remove" }
func (*removeCmd) Synopsis() string         { return "remove a process" }
func (*removeCmd) Usage() string            { return "remove <name>\n" }
func (*removeCmd) SetFlags(*flag.FlagSet)   {}
func (*removeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := requirePlaces(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := configDir + "/" + f.Arg(0)
	if err := os.Remove(path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type restartCmd struct{ counter int }

func (*restartCmd) Name() string           { return "restart" }
func (*restartCmd) Synopsis() string       { return "restart one process" }
func (*restartCmd) Usage() string          { return "restart <name>\n" }
func (*restartCmd) SetFlags(*flag.FlagSet) {}
func (c *restartCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := requirePlaces(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := ncmsg.Write(messages, c.counter, os.Getpid(), ncmsg.Restart(f.Arg(0))); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type restartAllCmd struct{ counter int }

func (*restartAllCmd) Name() string           { return "restart-all" }
func (*restartAllCmd) Synopsis() string       { return "restart every process" }
func (*restartAllCmd) Usage() string          { return "restart-all\n" }
func (*restartAllCmd) SetFlags(*flag.FlagSet) {}
func (c *restartAllCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := requirePlaces(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := ncmsg.Write(messages, c.counter, os.Getpid(), ncmsg.RestartAll()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type restartGroupCmd struct{ counter int }

func (*restartGroupCmd) Name() string           { return "restart-group" }
func (*restartGroupCmd) Synopsis() string       { return "restart every process in a group" }
func (*restartGroupCmd) Usage() string          { return "restart-group <group>\n" }
func (*restartGroupCmd) SetFlags(*flag.FlagSet) {}
func (c *restartGroupCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := requirePlaces(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := ncmsg.Write(messages, c.counter, os.Getpid(), ncmsg.RestartGroup(f.Arg(0))); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func writeAtomic(dir, name string, raw []byte) error {
	tmp := dir + "/" + name + ".new"
	final := dir + "/" + name
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}
