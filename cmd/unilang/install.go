package main

import (
	"fmt"
	"os"
	"path/filepath"

	"unilang/internal/platform"
)

func (c *cli) cmdInstall(args []string, install bool) error {
	name := "install"
	if !install {
		name = "uninstall"
	}
	fs := c.bareFlags(name)
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := platform.New(c.quietLogger())
	inst, ok := backend.(platform.Installer)
	if !ok {
		fmt.Fprintf(c.stdout, "%s backend needs no registration\n", backend.Name())
		return nil
	}

	if !install {
		if err := inst.Uninstall(); err != nil {
			return fmt.Errorf("uninstall: %w", err)
		}
		fmt.Fprintf(c.stdout, "removed %s registration\n", backend.Name())
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if err := inst.Install(exe); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	fmt.Fprintf(c.stdout, "registered %s with %s\n", exe, backend.Name())
	return nil
}
