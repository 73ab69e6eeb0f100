package config

import (
	"cmp"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DialectsChanged is true when templates or overrides differ.
	DialectsChanged bool
	// DialectChanges lists per-dialect override diffs.
	DialectChanges []DialectDiff

	// SessionChanged is true when any session setting differs. Session
	// settings apply to sessions started after the reload.
	SessionChanged bool

	// ScriptFilterChanged is true when transcript.script_filter differs.
	ScriptFilterChanged bool

	// RestartRequired names top-level sections that changed but are only
	// read at startup (e.g. "server.listen_addr", "providers").
	RestartRequired []string
}

// Changed reports whether anything differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DialectsChanged || d.SessionChanged ||
		d.ScriptFilterChanged || len(d.RestartRequired) > 0
}

// DialectDiff describes what changed for a single dialect override.
type DialectDiff struct {
	ID      string
	Added   bool
	Removed bool
	Changed bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Dialect templates
	if old.Dialects.PromptTemplate != new.Dialects.PromptTemplate ||
		old.Dialects.NudgeTemplate != new.Dialects.NudgeTemplate {
		d.DialectsChanged = true
	}

	// Dialect overrides keyed by ID.
	oldByID := make(map[string]int, len(old.Dialects.Overrides))
	for i, o := range old.Dialects.Overrides {
		oldByID[o.ID] = i
	}
	newByID := make(map[string]int, len(new.Dialects.Overrides))
	for i, o := range new.Dialects.Overrides {
		newByID[o.ID] = i
	}
	for id, i := range oldByID {
		j, ok := newByID[id]
		switch {
		case !ok:
			d.DialectChanges = append(d.DialectChanges, DialectDiff{ID: id, Removed: true})
		case !reflect.DeepEqual(old.Dialects.Overrides[i], new.Dialects.Overrides[j]):
			d.DialectChanges = append(d.DialectChanges, DialectDiff{ID: id, Changed: true})
		}
	}
	for id := range newByID {
		if _, ok := oldByID[id]; !ok {
			d.DialectChanges = append(d.DialectChanges, DialectDiff{ID: id, Added: true})
		}
	}
	slices.SortFunc(d.DialectChanges, func(a, b DialectDiff) int { return cmp.Compare(a.ID, b.ID) })
	if len(d.DialectChanges) > 0 {
		d.DialectsChanged = true
	}

	// Session and transcript
	d.SessionChanged = !reflect.DeepEqual(old.Session, new.Session)
	d.ScriptFilterChanged = old.Transcript.ScriptFilter != new.Transcript.ScriptFilter

	// Startup-only settings.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Telemetry, new.Telemetry) {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
