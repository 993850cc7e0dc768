// Package matcher detects shortcut trigger sequences in a stream of typed
// characters.
//
// The matcher keeps a bounded window of the most recent characters and a
// small amount of mode state. Each call to AddChar appends one character and
// reports at most one candidate Match. Three families of trigger are
// recognized:
//
//   - LaTeX-style escapes terminated by a space: \alpha, \int, \rightarrow
//   - Single-shot script markers: ^2, _n, ^+
//   - Sticky script groups: ^( opens superscript mode, every following
//     allowed character converts individually, and ) closes the group
//
// The matcher does not know which triggers exist. It reports syntactically
// valid candidates and the caller decides whether a shortcut table entry
// backs them.
//
// A Matcher is not safe for concurrent use. The owner serializes access.
package matcher

// DefaultBufferSize is the number of recent characters retained.
const DefaultBufferSize = 32

// minBufferSize is the smallest window that still fits a useful trigger.
const minBufferSize = 4

// Mode is the matcher's current input mode.
type Mode int

const (
	// ModeNormal is the resting state.
	ModeNormal Mode = iota
	// ModeLatexPending is active between a backslash and its terminating space.
	ModeLatexPending
	// ModeSuperscript converts every allowed character until ')' is typed.
	ModeSuperscript
	// ModeSubscript converts every allowed character until ')' is typed.
	ModeSubscript
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeLatexPending:
		return "latex-pending"
	case ModeSuperscript:
		return "superscript"
	case ModeSubscript:
		return "subscript"
	default:
		return "unknown"
	}
}

// prefix returns the trigger prefix for a script mode.
func (m Mode) prefix() string {
	if m == ModeSubscript {
		return "_"
	}
	return "^"
}

// Kind distinguishes full pattern completions from transliterations inside
// a script group.
type Kind int

const (
	// Structural matches complete a multi-character pattern whose final
	// character is the trigger key itself (\alpha + space, ^2, ^().
	Structural Kind = iota + 1

	// AutoConvert matches transliterate a single character typed inside a
	// sticky script mode, including the closing ')'.
	AutoConvert
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case AutoConvert:
		return "auto-convert"
	default:
		return "unknown"
	}
}

// Match is a candidate trigger detected by AddChar.
type Match struct {
	Kind Kind

	// Pattern is the lookup key for the shortcut table, e.g. "\alpha" or "^2".
	// For LaTeX matches the terminating space is not part of the pattern.
	Pattern string

	// Start is the buffer index of the first character of the match.
	Start int

	// Length is the number of buffered characters covered by the match,
	// including the terminating key.
	Length int
}

// EraseCount returns the number of characters already delivered to the
// focused application that must be removed before the replacement is typed.
//
// Every match ends with the key being handled right now, and that key is
// suppressed before delivery, so one fewer character than Length is on
// screen. An AutoConvert match covers only that key and erases nothing.
// This assumes the capture source can always block the trigger; a source
// that cannot (pasted or injected text) would leave one stray character and
// needs its own accounting.
func (m Match) EraseCount() int {
	if m.Length <= 1 {
		return 0
	}
	return m.Length - 1
}

// Matcher is the trigger detection state machine.
type Matcher struct {
	buf  []rune
	size int

	// script is ModeNormal, ModeSuperscript or ModeSubscript.
	script Mode
	latex  bool
}

// New returns a Matcher retaining up to size characters.
// Sizes below a small minimum are raised to it.
func New(size int) *Matcher {
	if size < minBufferSize {
		size = minBufferSize
	}
	return &Matcher{
		buf:  make([]rune, 0, size),
		size: size,
	}
}

// AddChar appends ch and reports the trigger it completes, if any.
func (m *Matcher) AddChar(ch rune) (Match, bool) {
	if len(m.buf) == m.size {
		copy(m.buf, m.buf[1:])
		m.buf = m.buf[:len(m.buf)-1]
	}
	m.buf = append(m.buf, ch)

	if ch == '\\' {
		m.latex = true
	} else if m.latex && !isLetter(ch) && ch != ' ' {
		m.latex = false
	}

	if match, ok := m.checkModeOpen(); ok {
		return match, true
	}

	if m.script != ModeNormal {
		if ch == ')' {
			match := m.tail(AutoConvert, m.script.prefix()+")", 1)
			m.script = ModeNormal
			return match, true
		}
		if isScriptChar(ch) {
			return m.tail(AutoConvert, m.script.prefix()+string(ch), 1), true
		}
	}

	if match, ok := m.checkLatex(); ok {
		return match, true
	}

	return m.checkSingleShot()
}

// RemoveLastChar drops the most recent character. Mode is left unchanged and
// no match is re-evaluated.
func (m *Matcher) RemoveLastChar() {
	if len(m.buf) > 0 {
		m.buf = m.buf[:len(m.buf)-1]
	}
}

// Reset clears the buffer and returns to ModeNormal.
func (m *Matcher) Reset() {
	m.buf = m.buf[:0]
	m.script = ModeNormal
	m.latex = false
}

// Mode reports the current mode. A sticky script mode takes precedence over
// a pending LaTeX escape.
func (m *Matcher) Mode() Mode {
	if m.script != ModeNormal {
		return m.script
	}
	if m.latex {
		return ModeLatexPending
	}
	return ModeNormal
}

// IsSuperscriptActive reports whether a ^( group is open.
func (m *Matcher) IsSuperscriptActive() bool { return m.script == ModeSuperscript }

// IsSubscriptActive reports whether a _( group is open.
func (m *Matcher) IsSubscriptActive() bool { return m.script == ModeSubscript }

// IsLatexPending reports whether a backslash escape is being typed.
func (m *Matcher) IsLatexPending() bool { return m.latex }

// InScriptMode reports whether either sticky script mode is active.
func (m *Matcher) InScriptMode() bool { return m.script != ModeNormal }

// Buffer returns a copy of the buffered characters.
func (m *Matcher) Buffer() string { return string(m.buf) }

// Len returns the number of buffered characters.
func (m *Matcher) Len() int { return len(m.buf) }

// Cap returns the maximum number of buffered characters.
func (m *Matcher) Cap() int { return m.size }

func (m *Matcher) checkModeOpen() (Match, bool) {
	n := len(m.buf)
	if n < 2 || m.buf[n-1] != '(' {
		return Match{}, false
	}
	switch m.buf[n-2] {
	case '^':
		m.script = ModeSuperscript
		return m.tail(Structural, "^(", 2), true
	case '_':
		m.script = ModeSubscript
		return m.tail(Structural, "_(", 2), true
	}
	return Match{}, false
}

// checkLatex looks for \letters followed by the space just typed. The
// pending flag is cleared whether or not a match results.
func (m *Matcher) checkLatex() (Match, bool) {
	n := len(m.buf)
	if n == 0 || m.buf[n-1] != ' ' {
		return Match{}, false
	}

	slash := -1
	for i := n - 2; i >= 0; i-- {
		if m.buf[i] == '\\' {
			slash = i
			break
		}
	}
	if slash < 0 {
		m.latex = false
		return Match{}, false
	}

	letters := m.buf[slash+1 : n-1]
	if len(letters) < 2 {
		m.latex = false
		return Match{}, false
	}
	for _, r := range letters {
		if !isLetter(r) {
			m.latex = false
			return Match{}, false
		}
	}

	m.latex = false
	pattern := string(m.buf[slash : n-1])
	return Match{
		Kind:    Structural,
		Pattern: pattern,
		Start:   slash,
		Length:  len(letters) + 2,
	}, true
}

func (m *Matcher) checkSingleShot() (Match, bool) {
	n := len(m.buf)
	if n < 2 {
		return Match{}, false
	}
	marker := m.buf[n-2]
	if marker != '^' && marker != '_' {
		return Match{}, false
	}
	if !isScriptChar(m.buf[n-1]) {
		return Match{}, false
	}
	return m.tail(Structural, string(m.buf[n-2:]), 2), true
}

// tail builds a match covering the last length buffered characters.
func (m *Matcher) tail(kind Kind, pattern string, length int) Match {
	return Match{
		Kind:    kind,
		Pattern: pattern,
		Start:   len(m.buf) - length,
		Length:  length,
	}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// isScriptChar reports whether r has a superscript/subscript form.
func isScriptChar(r rune) bool {
	if isLetter(r) || isDigit(r) {
		return true
	}
	switch r {
	case '+', '-', '=', '(', ')', '/':
		return true
	}
	return false
}
