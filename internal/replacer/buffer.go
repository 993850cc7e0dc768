package replacer

import "sync"

// OpKind identifies a synthesized operation.
type OpKind int

const (
	OpErase OpKind = iota + 1
	OpInsert
)

// Op is one synthesized operation recorded by Buffer.
type Op struct {
	Kind OpKind
	Char rune
}

// Buffer is an in-memory Injector standing in for a focused text field. It
// backs the dry-run command and tests.
type Buffer struct {
	mu   sync.Mutex
	text []rune
	ops  []Op
}

// Deliver appends a keystroke that reached the application unmodified.
func (b *Buffer) Deliver(r rune) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = append(b.text, r)
}

// Backspace removes the last character as a physical Backspace would.
func (b *Buffer) Backspace() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.text) > 0 {
		b.text = b.text[:len(b.text)-1]
	}
}

// EraseChar implements Injector.
func (b *Buffer) EraseChar() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.text) > 0 {
		b.text = b.text[:len(b.text)-1]
	}
	b.ops = append(b.ops, Op{Kind: OpErase})
	return nil
}

// InsertChar implements Injector.
func (b *Buffer) InsertChar(r rune) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = append(b.text, r)
	b.ops = append(b.ops, Op{Kind: OpInsert, Char: r})
	return nil
}

// String returns the current text.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// Ops returns the synthesized operations in order.
func (b *Buffer) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.ops...)
}
