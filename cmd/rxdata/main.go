// Command rxdata prepares SMILES datasets and inspects molecules.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

type command interface {
	execute(ctx context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error
	summary() string
}

var commands = map[string]command{
	"setup":      &setupCmd{},
	"vocab":      &vocabCmd{},
	"randomize":  &randomizeCmd{},
	"canonical":  &canonicalCmd{},
	"similarity": &similarityCmd{},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(stderr, usage())
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "rxdata: unknown command %q\n\n%s\n", name, usage())
		return 2
	}

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := cmd.execute(ctx, args[1:], flags, stdout); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "rxdata %s: %v\n", name, err)
		return 1
	}
	return 0
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString("Usage: rxdata <command> [flags] [args]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "  %-11s %s\n", name, commands[name].summary())
	}
	return sb.String()
}
