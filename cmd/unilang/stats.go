package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-runewidth"

	"unilang/internal/store"
)

func (c *cli) cmdStats(args []string) error {
	fs, configPath := c.flags("stats")
	top := fs.IntP("top", "n", 0, "number of triggers to show (default: stats.top_n)")
	days := fs.Int("days", 0, "also show daily totals for this many days")
	reset := fs.Bool("reset", false, "delete all recorded usage")
	schema := fs.Bool("schema", false, "check the database schema and show its migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *top <= 0 {
		*top = cfg.Stats.TopN
	}

	path := cfg.StatsPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(c.stdout, "no usage recorded at %s\n", path)
		if !cfg.Stats.Enabled {
			fmt.Fprintln(c.stdout, "set stats.enabled = true in the config file to start recording")
		}
		return nil
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *schema {
		status, err := st.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "schema version %d of %d\n", status.CurrentVersion, status.LatestVersion)
		for _, m := range status.Applied {
			fmt.Fprintf(c.stdout, "  v%d  %s  %s\n", m.Version, m.AppliedAt.Format(time.DateTime), m.Description)
		}
		for _, m := range status.Pending {
			fmt.Fprintf(c.stdout, "  v%d  pending  %s\n", m.Version, m.Description)
		}
		return nil
	}

	if *reset {
		if err := st.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "usage statistics cleared")
		return nil
	}

	totals, err := st.Totals(ctx)
	if err != nil {
		return err
	}
	if totals.Uses == 0 {
		fmt.Fprintln(c.stdout, "no usage recorded yet")
		return nil
	}
	fmt.Fprintf(c.stdout, "%d conversions of %d triggers since %s\n\n",
		totals.Uses, totals.Patterns, totals.Since.Format("2006-01-02"))

	usage, err := st.Top(ctx, *top)
	if err != nil {
		return err
	}
	width := 0
	for _, u := range usage {
		width = max(width, runewidth.StringWidth(u.Pattern))
	}
	for _, u := range usage {
		fmt.Fprintf(c.stdout, "%6d  %s  %s\n", u.Count, runewidth.FillRight(u.Pattern, width), u.Replacement)
	}

	if *days > 0 {
		now := time.Now()
		daily, err := st.Daily(ctx, *days, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout)
		for i := *days - 1; i >= 0; i-- {
			day := now.AddDate(0, 0, -i).Format("2006-01-02")
			fmt.Fprintf(c.stdout, "%s  %d\n", day, daily[day])
		}
	}
	return nil
}
