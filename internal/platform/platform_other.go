//go:build !linux && !windows

package platform

import (
	"context"
	"log/slog"
	"runtime"
)

// unavailableBackend is compiled where no capture mechanism is implemented.
type unavailableBackend struct{}

func newNative(*slog.Logger) Backend {
	return unavailableBackend{}
}

func (unavailableBackend) Name() string { return runtime.GOOS }

func (unavailableBackend) Available() (bool, string) {
	return false, "no keyboard capture backend for " + runtime.GOOS
}

func (unavailableBackend) Start(context.Context, Handler) error { return ErrNotAvailable }

func (unavailableBackend) Stop() error { return nil }

func (unavailableBackend) Resolve(KeyEvent) Key { return Key{Kind: KeyIgnored} }

func (unavailableBackend) EraseChar() error { return ErrNotAvailable }

func (unavailableBackend) InsertChar(rune) error { return ErrNotAvailable }
