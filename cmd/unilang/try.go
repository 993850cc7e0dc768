package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"unilang/internal/engine"
	"unilang/internal/platform"
	"unilang/internal/replacer"
	"unilang/internal/shortcuts"
)

func (c *cli) cmdTry(args []string) error {
	fs, configPath := c.flags("try")
	tablePath := fs.String("table", "", "use this overlay file instead of the configured one")
	verbose := fs.BoolP("verbose", "v", false, "list each replacement")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := strings.Join(fs.Args(), " ")
	if input == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return err
		}
		input = strings.TrimSuffix(string(data), "\n")
	}
	if input == "" {
		return errors.New("usage: unilang try <text>")
	}

	var (
		table *shortcuts.Table
		err   error
	)
	if *tablePath != "" {
		table, err = shortcuts.Load(*tablePath)
	} else {
		table, err = c.table(*configPath, false)
	}
	if err != nil {
		return err
	}

	out, reps := simulate(table, input)

	fmt.Fprintf(c.stdout, "%s\n", out)
	if !*verbose {
		return nil
	}
	width := 0
	for _, r := range reps {
		width = max(width, runewidth.StringWidth(r.Pattern))
	}
	for _, r := range reps {
		fmt.Fprintf(c.stdout, "  %s  -> %s  (erase %d)\n",
			runewidth.FillRight(r.Pattern, width), r.Text, r.EraseCount)
	}
	return nil
}

// simulate types input into an in-memory application through a full
// coordinator and returns the resulting text.
func simulate(table engine.Table, input string) (string, []engine.Replacement) {
	sim := platform.NewSimulated()
	exec := replacer.New(sim, replacer.WithSleep(func(time.Duration) {}))

	var reps []engine.Replacement
	coord := engine.New(sim, table, exec, engine.WithOnReplace(func(r engine.Replacement) {
		reps = append(reps, r)
	}))
	// Start only fails when already started.
	_ = sim.Start(context.Background(), coord)
	defer sim.Stop()

	sim.Type(input)
	return sim.String(), reps
}
