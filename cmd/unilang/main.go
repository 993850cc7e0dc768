// unilang rewrites LaTeX-style escapes and script markers into Unicode as
// you type, in any application.
//
//	unilang run               Capture keystrokes and convert triggers
//	unilang try <text>        Show what typing <text> would produce
//	unilang shortcuts [query] List or search the shortcut table
//	unilang check <file>      Validate a shortcut overlay file
//	unilang stats             Show the most used triggers
//	unilang config <action>   Create, show or validate the config file
//	unilang install           Register with the input system (IBus on Linux)
//	unilang uninstall         Remove that registration
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"unilang/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "unilang: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the standard streams so commands can be exercised in tests.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) run(args []string) error {
	if len(args) == 0 {
		c.usage()
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return c.cmdRun(rest)
	case "try":
		return c.cmdTry(rest)
	case "shortcuts", "list":
		return c.cmdShortcuts(rest)
	case "check":
		return c.cmdCheck(rest)
	case "stats":
		return c.cmdStats(rest)
	case "config":
		return c.cmdConfig(rest)
	case "install":
		return c.cmdInstall(rest, true)
	case "uninstall":
		return c.cmdInstall(rest, false)
	case "version", "--version":
		fmt.Fprintf(c.stdout, "unilang %s\n", version)
		return nil
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		c.usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *cli) usage() {
	fmt.Fprint(c.stderr, `unilang - type Unicode math with LaTeX-style shortcuts

USAGE:
    unilang <command> [flags]

COMMANDS:
    run                 Capture keystrokes and convert triggers
    try <text>          Show what typing <text> would produce
    shortcuts [query]   List or search the shortcut table
    check <file>        Validate a shortcut overlay file
    stats               Show the most used triggers
    config <action>     init, show, path or validate the config file
    install             Register with the input system (IBus on Linux)
    uninstall           Remove that registration
    version             Print the version

TRIGGERS:
    \alpha<space>       α     LaTeX names end with a space
    x^2  x_1            x² x₁ one script character
    ^(n+1)              ⁽ⁿ⁺¹⁾ a script group, closed by )

Run 'unilang <command> --help' for the flags of a command.
`)
}

// flags returns a flag set for a subcommand with the shared --config flag.
func (c *cli) flags(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.StringP("config", "c", "", "config file (default: "+config.FindConfigFile()+")")
	return fs, configPath
}

// loadConfig reads and validates the configuration without watching it.
func loadConfig(path string) (*config.Config, error) {
	return config.NewLoader(path).Load()
}

// quietLogger is used by one-shot commands, which report through their
// output instead of logs.
func (c *cli) quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
