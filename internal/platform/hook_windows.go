//go:build windows

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procGetKeyState         = user32.NewProc("GetKeyState")
	procGetKeyboardLayout   = user32.NewProc("GetKeyboardLayout")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadPID  = user32.NewProc("GetWindowThreadProcessId")
	procToUnicodeEx         = user32.NewProc("ToUnicodeEx")
	procSendInput           = user32.NewProc("SendInput")
)

const (
	whKeyboardLL = 13
	hcAction     = 0

	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	wmQuit       = 0x0012

	llkhfInjected = 0x10

	vkBack    = 0x08
	vkTab     = 0x09
	vkReturn  = 0x0D
	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkCapital = 0x14
	vkEscape  = 0x1B
	vkLWin    = 0x5B
	vkRWin    = 0x5C

	inputKeyboard     = 1
	keyeventfKeyUp    = 0x0002
	keyeventfUnicode  = 0x0004
	toUnicodeNoChange = 0x4 // leave kernel dead-key state untouched (Windows 10 1607+)
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// keyboardInput matches the size of INPUT, whose union is sized by
// MOUSEINPUT.
type keyboardInput struct {
	Type uint32
	Ki   keybdInput
	_    [8]byte
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// hookOwner is the process-wide slot consulted by the hook procedure. The
// low-level hook API accepts only a free function, so the running
// windowsBackend publishes itself here on Start and clears it on Stop. No
// other code writes it.
var hookOwner atomic.Pointer[windowsBackend]

var hookCallback = windows.NewCallback(lowLevelKeyboardProc)

type windowsBackend struct {
	logger *slog.Logger

	mu       sync.Mutex
	handler  Handler
	threadID uint32
	done     chan struct{}

	foreground atomic.Uintptr
}

func newNative(logger *slog.Logger) Backend {
	return &windowsBackend{logger: logger.With("backend", "windows-hook")}
}

func (b *windowsBackend) Name() string { return "windows-hook" }

func (b *windowsBackend) Available() (bool, string) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Start installs the hook on a dedicated locked OS thread that pumps
// messages until Stop.
func (b *windowsBackend) Start(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return ErrAlreadyRunning
	}
	if !hookOwner.CompareAndSwap(nil, b) {
		return ErrAlreadyRunning
	}
	b.handler = h

	ready := make(chan pumpStarted, 1)
	done := make(chan struct{})
	go b.pump(ready, done)

	started := <-ready
	if started.err != nil {
		hookOwner.CompareAndSwap(b, nil)
		b.handler = nil
		return started.err
	}
	b.threadID = started.threadID
	b.done = done

	go func() {
		select {
		case <-ctx.Done():
			b.Stop()
		case <-done:
		}
	}()
	b.logger.Info("keyboard hook installed")
	return nil
}

func (b *windowsBackend) Stop() error {
	b.mu.Lock()
	done, tid := b.done, b.threadID
	b.done = nil
	b.mu.Unlock()

	if done == nil {
		return nil
	}
	procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	<-done
	hookOwner.CompareAndSwap(b, nil)

	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()
	b.logger.Info("keyboard hook removed")
	return nil
}

type pumpStarted struct {
	threadID uint32
	err      error
}

// pump owns the hook for its lifetime. The hook is removed on the same
// thread that installed it.
func (b *windowsBackend) pump(ready chan<- pumpStarted, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback, 0, 0)
	if hook == 0 {
		ready <- pumpStarted{err: fmt.Errorf("SetWindowsHookEx: %w", err)}
		return
	}
	defer procUnhookWindowsHookEx.Call(hook)
	ready <- pumpStarted{threadID: windows.GetCurrentThreadId()}

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			return
		}
	}
}

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if b := hookOwner.Load(); b != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if kb.Flags&llkhfInjected == 0 && b.deliver(kb, wParam) {
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

func (b *windowsBackend) deliver(kb *kbdllHookStruct, wParam uintptr) bool {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return false
	}

	down := wParam == wmKeyDown || wParam == wmSysKeyDown
	if down {
		fg, _, _ := procGetForegroundWindow.Call()
		if prev := b.foreground.Swap(fg); prev != 0 && prev != fg {
			h.FocusChanged()
		}
	}

	return h.HandleKey(KeyEvent{
		Code:     kb.VkCode,
		ScanCode: kb.ScanCode,
		State:    kb.Flags,
		Down:     down,
	})
}

// Resolve implements KeyResolver using the modifier state at call time and
// the keyboard layout of the foreground window.
func (b *windowsBackend) Resolve(ev KeyEvent) Key {
	switch ev.Code {
	case vkBack:
		return Key{Kind: KeyBackspace}
	case vkReturn, vkEscape, vkTab:
		return Key{Kind: KeyReset}
	case vkShift, vkControl, vkMenu, vkCapital, vkLWin, vkRWin:
		return Key{Kind: KeyIgnored}
	}

	ctrl := keyDown(vkControl)
	alt := keyDown(vkMenu)
	// Ctrl+Alt together is AltGr and still types characters.
	if ctrl != alt || keyDown(vkLWin) || keyDown(vkRWin) {
		return Key{Kind: KeyIgnored}
	}

	var state [256]byte
	if keyDown(vkShift) {
		state[vkShift] = 0x80
	}
	if ctrl && alt {
		state[vkControl] = 0x80
		state[vkMenu] = 0x80
	}
	if caps, _, _ := procGetKeyState.Call(vkCapital); caps&1 != 0 {
		state[vkCapital] = 0x01
	}

	fg, _, _ := procGetForegroundWindow.Call()
	tid, _, _ := procGetWindowThreadPID.Call(fg, 0)
	layout, _, _ := procGetKeyboardLayout.Call(tid)

	var buf [4]uint16
	n, _, _ := procToUnicodeEx.Call(
		uintptr(ev.Code),
		uintptr(ev.ScanCode),
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		toUnicodeNoChange,
		layout,
	)
	if int32(n) <= 0 {
		return Key{Kind: KeyIgnored}
	}
	runes := utf16.Decode(buf[:n])
	if len(runes) != 1 || runes[0] < 0x20 {
		return Key{Kind: KeyIgnored}
	}
	return Key{Kind: KeyChar, Char: runes[0]}
}

// EraseChar sends a Backspace press and release.
func (b *windowsBackend) EraseChar() error {
	return sendInputs([]keyboardInput{
		{Type: inputKeyboard, Ki: keybdInput{Vk: vkBack}},
		{Type: inputKeyboard, Ki: keybdInput{Vk: vkBack, Flags: keyeventfKeyUp}},
	})
}

// InsertChar types r as one Unicode press and release per UTF-16 unit.
func (b *windowsBackend) InsertChar(r rune) error {
	units := utf16.Encode([]rune{r})
	inputs := make([]keyboardInput, 0, 2*len(units))
	for _, u := range units {
		inputs = append(inputs,
			keyboardInput{Type: inputKeyboard, Ki: keybdInput{Scan: u, Flags: keyeventfUnicode}},
			keyboardInput{Type: inputKeyboard, Ki: keybdInput{Scan: u, Flags: keyeventfUnicode | keyeventfKeyUp}},
		)
	}
	return sendInputs(inputs)
}

func sendInputs(inputs []keyboardInput) error {
	sent, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("SendInput sent %d of %d: %w", sent, len(inputs), err)
	}
	return nil
}

func keyDown(vk uintptr) bool {
	r, _, _ := procGetAsyncKeyState.Call(vk)
	return r&0x8000 != 0
}
