//go:build linux

package platform

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// IBus D-Bus names.
const (
	ibusEngineInterface  = "org.freedesktop.IBus.Engine"
	ibusFactoryInterface = "org.freedesktop.IBus.Factory"
	ibusFactoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")

	BusName       = "org.unilang.IBus"
	EngineName    = "unilang"
	EngineVersion = "1.0.0"
)

// IBus key event state masks.
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super
	IBusSuperMask   uint32 = 1 << 26
	IBusReleaseMask uint32 = 1 << 30
)

// X11 keysyms the resolver treats specially.
const (
	keyBackSpace   = 0xff08
	keyTab         = 0xff09
	keyReturn      = 0xff0d
	keyEscape      = 0xff1b
	keyKPEnter     = 0xff8d
	keyISOLeftTab  = 0xfe20
	keyKPSpace     = 0xff80
	keyKPMultiply  = 0xffaa
	keyKPAdd       = 0xffab
	keyKPSubtract  = 0xffad
	keyKPDecimal   = 0xffae
	keyKPDivide    = 0xffaf
	keyKP0         = 0xffb0
	keyKP9         = 0xffb9
	keyKPEqual     = 0xffbd
	evdevBackSpace = 14
)

// ibusText is the D-Bus serialization of an IBusText: (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	Attrs       dbus.Variant
}

// ibusAttrList is the D-Bus serialization of an empty IBusAttrList: (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attrs       []dbus.Variant
}

func newIBusText(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		Attrs: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attrs:       []dbus.Variant{},
		}),
	})
}

type ibusBackend struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	handler Handler
	active  dbus.ObjectPath
	nextID  uint32
}

func newNative(logger *slog.Logger) Backend {
	return &ibusBackend{logger: logger.With("backend", "ibus")}
}

func (b *ibusBackend) Name() string { return "ibus" }

func (b *ibusBackend) Available() (bool, string) {
	if _, err := busAddress(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Start connects to the IBus bus, claims the component name and exports
// the engine factory. IBus creates engines on demand through the factory.
func (b *ibusBackend) Start(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return ErrAlreadyRunning
	}

	addr, err := busAddress()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	conn, err := dbus.Connect(addr, dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect to ibus: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("bus name %s already taken", BusName)
	}

	if err := conn.Export(&ibusFactory{b: b}, ibusFactoryPath, ibusFactoryInterface); err != nil {
		conn.Close()
		return fmt.Errorf("export factory: %w", err)
	}

	b.conn = conn
	b.handler = h
	b.logger.Info("ibus engine registered", "bus_name", BusName)
	return nil
}

func (b *ibusBackend) Stop() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.handler = nil
	b.active = ""
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Resolve implements KeyResolver. IBus delivers the keysym already shifted
// for the active layout, so only Ctrl, Alt and Super chords are filtered.
func (b *ibusBackend) Resolve(ev KeyEvent) Key {
	return resolveKeysym(ev.Code, ev.State)
}

// EraseChar forwards a BackSpace press and release to the client.
func (b *ibusBackend) EraseChar() error {
	conn, path := b.target()
	if conn == nil {
		return ErrNotAvailable
	}
	if err := conn.Emit(path, ibusEngineInterface+".ForwardKeyEvent", uint32(keyBackSpace), uint32(evdevBackSpace), uint32(0)); err != nil {
		return err
	}
	return conn.Emit(path, ibusEngineInterface+".ForwardKeyEvent", uint32(keyBackSpace), uint32(evdevBackSpace), IBusReleaseMask)
}

// InsertChar commits r to the client.
func (b *ibusBackend) InsertChar(r rune) error {
	conn, path := b.target()
	if conn == nil {
		return ErrNotAvailable
	}
	return conn.Emit(path, ibusEngineInterface+".CommitText", newIBusText(string(r)))
}

// Install writes the IBus component description so ibus-daemon can launch
// the engine.
func (b *ibusBackend) Install(executable string) error {
	dir, err := componentDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create component dir: %w", err)
	}
	path := filepath.Join(dir, EngineName+".xml")
	if err := os.WriteFile(path, []byte(componentXML(executable)), 0o644); err != nil {
		return fmt.Errorf("write component: %w", err)
	}
	b.logger.Info("ibus component installed", "path", path)
	return nil
}

func (b *ibusBackend) Uninstall() error {
	dir, err := componentDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, EngineName+".xml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (b *ibusBackend) target() (*dbus.Conn, dbus.ObjectPath) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn, b.active
}

func (b *ibusBackend) dispatch(path dbus.ObjectPath, ev KeyEvent) bool {
	b.mu.Lock()
	b.active = path
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return false
	}
	return h.HandleKey(ev)
}

func (b *ibusBackend) focusChanged(path dbus.ObjectPath) {
	b.mu.Lock()
	b.active = path
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h.FocusChanged()
	}
}

// ibusFactory implements org.freedesktop.IBus.Factory.
type ibusFactory struct {
	b *ibusBackend
}

// CreateEngine exports a fresh engine object for each input context.
func (f *ibusFactory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != EngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine", []interface{}{"unknown engine: " + name})
	}

	f.b.mu.Lock()
	f.b.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", f.b.nextID))
	conn := f.b.conn
	f.b.mu.Unlock()

	if conn == nil {
		return "", dbus.MakeFailedError(ErrNotAvailable)
	}
	if err := conn.Export(&ibusEngine{b: f.b, path: path}, path, ibusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	f.b.logger.Debug("engine created", "path", path)
	return path, nil
}

// ibusEngine implements org.freedesktop.IBus.Engine for one input context.
// Only D-Bus methods are exported on this type.
type ibusEngine struct {
	b    *ibusBackend
	path dbus.ObjectPath
}

// ProcessKeyEvent returns true when the key is consumed.
func (e *ibusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	ev := KeyEvent{
		Code:     keyval,
		ScanCode: keycode,
		State:    state &^ IBusReleaseMask,
		Down:     state&IBusReleaseMask == 0,
	}
	return e.b.dispatch(e.path, ev), nil
}

func (e *ibusEngine) FocusIn() *dbus.Error {
	e.b.focusChanged(e.path)
	return nil
}

func (e *ibusEngine) FocusOut() *dbus.Error {
	e.b.focusChanged(e.path)
	return nil
}

// Reset is sent when the client moves the cursor or clears its preedit.
func (e *ibusEngine) Reset() *dbus.Error {
	e.b.focusChanged(e.path)
	return nil
}

func (e *ibusEngine) Enable() *dbus.Error {
	e.b.focusChanged(e.path)
	return nil
}

func (e *ibusEngine) Disable() *dbus.Error {
	e.b.focusChanged(e.path)
	return nil
}

func (e *ibusEngine) Destroy() *dbus.Error {
	e.b.mu.Lock()
	conn := e.b.conn
	if e.b.active == e.path {
		e.b.active = ""
	}
	e.b.mu.Unlock()
	if conn != nil {
		conn.Export(nil, e.path, ibusEngineInterface)
	}
	return nil
}

func (e *ibusEngine) SetCapabilities(caps uint32) *dbus.Error { return nil }

func (e *ibusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error { return nil }

func (e *ibusEngine) SetContentType(purpose, hints uint32) *dbus.Error { return nil }

func (e *ibusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return nil
}

func (e *ibusEngine) PropertyActivate(name string, state uint32) *dbus.Error { return nil }

func (e *ibusEngine) PageUp() *dbus.Error { return nil }

func (e *ibusEngine) PageDown() *dbus.Error { return nil }

func (e *ibusEngine) CursorUp() *dbus.Error { return nil }

func (e *ibusEngine) CursorDown() *dbus.Error { return nil }

func (e *ibusEngine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

func resolveKeysym(keyval, state uint32) Key {
	switch keyval {
	case keyBackSpace:
		return Key{Kind: KeyBackspace}
	case keyReturn, keyKPEnter, keyEscape, keyTab, keyISOLeftTab:
		return Key{Kind: KeyReset}
	}
	if state&(IBusControlMask|IBusMod1Mask|IBusMod4Mask|IBusSuperMask) != 0 {
		return Key{Kind: KeyIgnored}
	}
	if r := keyvalToRune(keyval); r != 0 {
		return Key{Kind: KeyChar, Char: r}
	}
	return Key{Kind: KeyIgnored}
}

// keyvalToRune converts an X11 keysym to the character it types.
func keyvalToRune(keyval uint32) rune {
	switch {
	case keyval >= 0x20 && keyval <= 0x7e:
		return rune(keyval)
	case keyval >= 0xa0 && keyval <= 0xff:
		return rune(keyval)
	case keyval >= 0x01000000 && keyval <= 0x0110ffff:
		return rune(keyval - 0x01000000)
	case keyval >= keyKP0 && keyval <= keyKP9:
		return rune('0' + keyval - keyKP0)
	}
	switch keyval {
	case keyKPSpace:
		return ' '
	case keyKPMultiply:
		return '*'
	case keyKPAdd:
		return '+'
	case keyKPSubtract:
		return '-'
	case keyKPDecimal:
		return '.'
	case keyKPDivide:
		return '/'
	case keyKPEqual:
		return '='
	}
	return 0
}

// busAddress locates the IBus bus, which is separate from the session bus.
func busAddress() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}
	out, err := exec.Command("ibus", "address").Output()
	if err != nil {
		return "", fmt.Errorf("ibus address: %w", err)
	}
	addr := strings.TrimSpace(string(out))
	if addr == "" || addr == "(null)" {
		return "", errors.New("ibus-daemon is not running")
	}
	return addr, nil
}

func componentDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "ibus", "component"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "ibus", "component"), nil
}

func componentXML(executable string) string {
	var exe strings.Builder
	xml.EscapeText(&exe, []byte(executable))
	return `<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>` + BusName + `</name>
    <description>Unicode symbol input from LaTeX-style shortcuts</description>
    <exec>` + exe.String() + ` run --ibus</exec>
    <version>` + EngineVersion + `</version>
    <author>unilang</author>
    <license>MIT</license>
    <textdomain>unilang</textdomain>
    <engines>
        <engine>
            <name>` + EngineName + `</name>
            <language>en</language>
            <license>MIT</license>
            <author>unilang</author>
            <layout>default</layout>
            <longname>unilang</longname>
            <description>Type \alpha, ^2 or _n to get α, ² or ₙ</description>
            <rank>0</rank>
            <symbol>∑</symbol>
        </engine>
    </engines>
</component>
`
}
