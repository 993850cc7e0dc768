package metrics

// Engine holds the metrics recorded on the capture path.
type Engine struct {
	Keys            *Counter
	Matches         *Counter
	Replacements    *Counter
	UnknownPatterns *Counter
	Suppressed      *Counter
	InjectorErrors  *Counter
	RecoveredPanics *Counter
	Resets          *Counter
	TableReloads    *Counter
	TableSize       *Gauge
	HandleKey       *Histogram
}

// NewEngine registers the capture-path metrics in r.
func NewEngine(r *Registry) *Engine {
	return &Engine{
		Keys:            r.Counter("keys_total", "Key presses seen while enabled."),
		Matches:         r.Counter("matches_total", "Patterns completed by the matcher."),
		Replacements:    r.Counter("replacements_total", "Patterns replaced in the focused application."),
		UnknownPatterns: r.Counter("unknown_patterns_total", "Completed patterns absent from the shortcut table."),
		Suppressed:      r.Counter("suppressed_total", "Key presses withheld from the focused application."),
		InjectorErrors:  r.Counter("injector_errors_total", "Synthesized erase or insert operations that failed."),
		RecoveredPanics: r.Counter("recovered_panics_total", "Panics recovered at the capture boundary."),
		Resets:          r.Counter("resets_total", "Matcher resets from terminators and focus changes."),
		TableReloads:    r.Counter("table_reloads_total", "Shortcut tables published after a file change."),
		TableSize:       r.Gauge("table_size", "Entries in the active shortcut table."),
		HandleKey:       r.Histogram("handle_key_seconds", "Time spent handling one key event.", LatencyBuckets),
	}
}
