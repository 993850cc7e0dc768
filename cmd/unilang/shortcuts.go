package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/pflag"
	"github.com/tidwall/pretty"

	"unilang/internal/shortcuts"
)

func (c *cli) cmdShortcuts(args []string) error {
	fs, configPath := c.flags("shortcuts")
	category := fs.String("category", "", "only list this category")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	builtin := fs.Bool("builtin", false, "ignore the user overlay")
	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := c.table(*configPath, *builtin)
	if err != nil {
		return err
	}

	entries := table.Search(strings.Join(fs.Args(), " "))
	if *category != "" {
		kept := entries[:0]
		for _, e := range entries {
			if strings.EqualFold(e.Category, *category) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if *asJSON {
		if entries == nil {
			entries = []shortcuts.Entry{}
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		_, err = c.stdout.Write(pretty.Pretty(data))
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.stderr, "no matching shortcuts")
		return nil
	}
	printEntries(c.stdout, entries)
	return nil
}

// table loads the active shortcut table: built-ins plus the configured
// overlay unless builtinOnly is set.
func (c *cli) table(configPath string, builtinOnly bool) (*shortcuts.Table, error) {
	if builtinOnly {
		return shortcuts.Default()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return shortcuts.Load(cfg.ShortcutsPath())
}

// printEntries writes entries grouped by category with the trigger column
// aligned by display width.
func printEntries(w io.Writer, entries []shortcuts.Entry) {
	width := 0
	for _, e := range entries {
		width = max(width, runewidth.StringWidth(e.Trigger))
	}

	current := ""
	for i, e := range entries {
		if e.Category != current {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s\n", e.Category)
			current = e.Category
		}
		fmt.Fprintf(w, "  %s  %s\n", runewidth.FillRight(e.Trigger, width), e.Replacement)
	}
}

func (c *cli) cmdCheck(args []string) error {
	fs := c.bareFlags("check")
	quiet := fs.BoolP("quiet", "q", false, "print nothing on success")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: unilang check <file>")
	}
	path := fs.Arg(0)

	overlay, err := shortcuts.LoadFile(path)
	if err != nil {
		return err
	}
	if *quiet {
		return nil
	}

	base, err := shortcuts.Default()
	if err != nil {
		return err
	}
	overrides := 0
	for _, e := range overlay.Search("") {
		if _, ok := base.Lookup(e.Trigger); ok {
			overrides++
		}
	}

	fmt.Fprintf(c.stdout, "%s: %d shortcuts in %d categories", path, overlay.Len(), len(overlay.Categories()))
	if overrides > 0 {
		fmt.Fprintf(c.stdout, ", %d override built-ins", overrides)
	}
	fmt.Fprintln(c.stdout)
	return nil
}

// bareFlags returns a flag set without --config, for commands that do not
// read the configuration.
func (c *cli) bareFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// writeStarterOverlay writes a commented overlay file users can edit.
func writeStarterOverlay(path string) error {
	const starter = `{
  // Entries here are merged over the built-in table. A trigger that already
  // exists is replaced; new categories are appended.
  "shortcuts": {
    "custom": {
      "\\hbar": "ℏ"
    }
  }
}
`
	if _, err := os.Stat(path); err == nil {
		return os.ErrExist
	}
	return os.WriteFile(path, []byte(starter), 0600)
}
