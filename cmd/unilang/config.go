package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"unilang/internal/config"
)

func (c *cli) cmdConfig(args []string) error {
	fs, configPath := c.flags("config")
	force := fs.Bool("force", false, "init: overwrite an existing file")
	format := fs.String("format", "toml", "init, show: toml, json or yaml")
	withShortcuts := fs.Bool("shortcuts", false, "init: also write a starter shortcut overlay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: unilang config <init|show|path|validate>")
	}

	ext, err := formatExt(*format)
	if err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	switch fs.Arg(0) {
	case "path":
		fmt.Fprintln(c.stdout, path)
		return nil

	case "init":
		if *configPath == "" {
			path = strings.TrimSuffix(config.ConfigPath(), filepath.Ext(config.ConfigPath())) + ext
		}
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		cfg := config.DefaultConfig()
		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "wrote %s\n", path)

		if *withShortcuts {
			overlay := cfg.ShortcutsPath()
			if err := os.MkdirAll(filepath.Dir(overlay), 0700); err != nil {
				return err
			}
			switch err := writeStarterOverlay(overlay); {
			case errors.Is(err, os.ErrExist):
				fmt.Fprintf(c.stdout, "kept existing %s\n", overlay)
			case err != nil:
				return err
			default:
				fmt.Fprintf(c.stdout, "wrote %s\n", overlay)
			}
		}
		return nil

	case "show":
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}
		data, err := config.Encode(cfg, "config"+ext)
		if err != nil {
			return err
		}
		_, err = c.stdout.Write(data)
		return err

	case "validate":
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		if _, err := loadConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%s: ok\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config action: %s", fs.Arg(0))
	}
}

func formatExt(format string) (string, error) {
	switch strings.ToLower(format) {
	case "toml":
		return ".toml", nil
	case "json":
		return ".json", nil
	case "yaml", "yml":
		return ".yaml", nil
	}
	return "", fmt.Errorf("unknown config format: %s", format)
}
