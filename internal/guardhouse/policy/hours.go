package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// HourWindow is a daily allowed window in local wall-clock time. A window may
// wrap midnight (From after To, e.g. 22:00–06:00). A nil window on a table
// entry means the category is unrestricted.
type HourWindow struct {
	From int // minutes since midnight, inclusive
	To   int // minutes since midnight, exclusive
}

// Allows reports whether t falls inside the window.
func (w HourWindow) Allows(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.From < w.To {
		return m >= w.From && m < w.To
	}
	// Wraps midnight.
	return m >= w.From || m < w.To
}

// HoursTable maps holder categories to their daily allowed window. Categories
// without an entry (or with an explicit "unrestricted") pass the hours check
// at any time of day — the table narrows access, it never has to enumerate
// every category upstream might invent.
type HoursTable map[types.Category]*HourWindow

// Allows reports whether the category may pass at time t.
func (h HoursTable) Allows(cat types.Category, t time.Time) bool {
	w, ok := h[cat]
	if !ok || w == nil {
		return true
	}
	return w.Allows(t)
}

// hoursFile is the on-disk shape of the policy table:
//
//	categories:
//	  primary: {from: "06:00", to: "22:00"}
//	  staff: unrestricted
type hoursFile struct {
	Categories map[string]hoursEntry `yaml:"categories"`
}

type hoursEntry struct {
	unrestricted bool
	from, to     string
}

func (e *hoursEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value != "unrestricted" {
			return fmt.Errorf("expected \"unrestricted\" or a window, got %q", value.Value)
		}
		e.unrestricted = true
		return nil
	}
	var raw struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	e.from, e.to = raw.From, raw.To
	return nil
}

// LoadHours reads and validates the per-category time-of-day policy table.
// Any problem here is a fatal configuration failure: the caller is expected
// to refuse to start rather than run with a partial policy.
func LoadHours(path string) (HoursTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseHours(data)
}

// ParseHours parses the YAML policy table.
func ParseHours(data []byte) (HoursTable, error) {
	var f hoursFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	table := make(HoursTable, len(f.Categories))
	for name, entry := range f.Categories {
		if entry.unrestricted {
			table[types.Category(name)] = nil
			continue
		}
		from, err := parseClock(entry.from)
		if err != nil {
			return nil, fmt.Errorf("category %q: from: %w", name, err)
		}
		to, err := parseClock(entry.to)
		if err != nil {
			return nil, fmt.Errorf("category %q: to: %w", name, err)
		}
		if from == to {
			return nil, fmt.Errorf("category %q: empty window %s-%s", name, entry.from, entry.to)
		}
		table[types.Category(name)] = &HourWindow{From: from, To: to}
	}
	return table, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad clock value %q (want HH:MM)", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
