// Package dialect holds the catalog of conversation dialects a VoxDesk
// session can run in, and renders the per-dialect system instruction and
// greeting nudge sent to the speech-to-speech model.
package dialect

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"
)

// ErrUnknownDialect is returned when a dialect ID is not in the catalog.
var ErrUnknownDialect = errors.New("dialect: unknown dialect")

// DefaultID is the dialect used when none is requested.
const DefaultID = "english"

// DefaultNudgeTemplate elicits the model's opening greeting. Speech-to-speech
// models do not speak first on their own.
const DefaultNudgeTemplate = "Please greet me in {{.Label}} dialect and wait for my response."

// Dialect is one selectable language/persona configuration.
type Dialect struct {
	// ID is the stable identifier (e.g. "saudi").
	ID string `json:"id" yaml:"id"`

	// Label is the human-readable name, also used as the model's target
	// language (e.g. "Saudi Arabic").
	Label string `json:"label" yaml:"label"`

	// Flag is an emoji flag for display.
	Flag string `json:"flag" yaml:"flag"`

	// Greeting is the opening line the agent is instructed to say.
	Greeting string `json:"greeting" yaml:"greeting"`

	// Voice is the speech-to-speech voice. Empty uses the provider default.
	Voice string `json:"voice,omitempty" yaml:"voice"`

	// Scripts lists the Unicode scripts expected in user transcription for
	// the optional script filter (e.g. ["Arabic"]).
	Scripts []string `json:"scripts,omitempty" yaml:"scripts"`

	// Instructions replaces the rendered system prompt when non-empty.
	Instructions string `json:"-" yaml:"instructions"`
}

// Catalog is a concurrency-safe set of dialects with the prompt templates used
// to render their instructions.
type Catalog struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]Dialect
	prompt *template.Template
	nudge  *template.Template
}

// CatalogOption configures a [Catalog].
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	promptTmpl string
	nudgeTmpl  string
}

// WithPromptTemplate overrides the system prompt template. The template is
// executed with the [Dialect] as data.
func WithPromptTemplate(tmpl string) CatalogOption {
	return func(o *catalogOptions) {
		if tmpl != "" {
			o.promptTmpl = tmpl
		}
	}
}

// WithNudgeTemplate overrides the greeting nudge template.
func WithNudgeTemplate(tmpl string) CatalogOption {
	return func(o *catalogOptions) {
		if tmpl != "" {
			o.nudgeTmpl = tmpl
		}
	}
}

// NewCatalog builds a catalog from the built-in dialects. Each entry of
// overrides replaces the built-in dialect with the same ID field by field
// (non-empty fields win) or, when the ID is new, is appended.
func NewCatalog(overrides []Dialect, opts ...CatalogOption) (*Catalog, error) {
	o := catalogOptions{promptTmpl: defaultPromptTemplate, nudgeTmpl: DefaultNudgeTemplate}
	for _, opt := range opts {
		opt(&o)
	}

	prompt, err := template.New("prompt").Option("missingkey=error").Parse(o.promptTmpl)
	if err != nil {
		return nil, fmt.Errorf("dialect: parse prompt template: %w", err)
	}
	nudge, err := template.New("nudge").Option("missingkey=error").Parse(o.nudgeTmpl)
	if err != nil {
		return nil, fmt.Errorf("dialect: parse nudge template: %w", err)
	}

	c := &Catalog{byID: make(map[string]Dialect), prompt: prompt, nudge: nudge}
	for _, d := range builtin {
		c.order = append(c.order, d.ID)
		c.byID[d.ID] = d
	}
	for i, d := range overrides {
		if d.ID == "" {
			return nil, fmt.Errorf("dialect: override %d has no id", i)
		}
		base, ok := c.byID[d.ID]
		if !ok {
			if d.Label == "" {
				return nil, fmt.Errorf("dialect: new dialect %q needs a label", d.ID)
			}
			c.order = append(c.order, d.ID)
			c.byID[d.ID] = d
			continue
		}
		c.byID[d.ID] = merge(base, d)
	}
	return c, nil
}

func merge(base, o Dialect) Dialect {
	if o.Label != "" {
		base.Label = o.Label
	}
	if o.Flag != "" {
		base.Flag = o.Flag
	}
	if o.Greeting != "" {
		base.Greeting = o.Greeting
	}
	if o.Voice != "" {
		base.Voice = o.Voice
	}
	if len(o.Scripts) > 0 {
		base.Scripts = slices.Clone(o.Scripts)
	}
	if o.Instructions != "" {
		base.Instructions = o.Instructions
	}
	return base
}

// Get returns the dialect with the given ID.
func (c *Catalog) Get(id string) (Dialect, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, id)
	}
	return d, nil
}

// List returns every dialect in catalog order.
func (c *Catalog) List() []Dialect {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Dialect, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Replace swaps the catalog contents for those of other. Used on config hot
// reload; sessions already running keep the dialect they started with.
func (c *Catalog) Replace(other *Catalog) {
	other.mu.RLock()
	order := slices.Clone(other.order)
	byID := make(map[string]Dialect, len(other.byID))
	for k, v := range other.byID {
		byID[k] = v
	}
	prompt, nudge := other.prompt, other.nudge
	other.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order, c.byID, c.prompt, c.nudge = order, byID, prompt, nudge
}

// Instructions renders the system instruction for d. A dialect carrying its
// own Instructions bypasses the template.
func (c *Catalog) Instructions(d Dialect) (string, error) {
	if d.Instructions != "" {
		return d.Instructions, nil
	}
	c.mu.RLock()
	tmpl := c.prompt
	c.mu.RUnlock()
	return render(tmpl, d)
}

// Nudge renders the greeting nudge for d.
func (c *Catalog) Nudge(d Dialect) (string, error) {
	c.mu.RLock()
	tmpl := c.nudge
	c.mu.RUnlock()
	return render(tmpl, d)
}

func render(tmpl *template.Template, d Dialect) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("dialect: render %s for %q: %w", tmpl.Name(), d.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
