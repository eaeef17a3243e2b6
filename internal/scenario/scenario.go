// Package scenario holds the roleplay catalog: each scenario describes a
// situation, the persona the tutor plays and three goals the learner should
// complete during the conversation.
//
// The built-in catalog is embedded in the binary. A user catalog file in
// the same YAML format can replace it at startup and be reloaded while the
// daemon runs.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// ErrNotFound is returned by [Catalog.Get] for an unknown id.
var ErrNotFound = errors.New("scenario: not found")

// Difficulty grades a scenario.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Difficulties lists every grade in ascending order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// IsValid reports whether d is one of [Difficulties].
func (d Difficulty) IsValid() bool { return slices.Contains(Difficulties, d) }

// GoalCount is the number of goals every scenario declares.
const GoalCount = 3

const goalTrackingTemplate = `
Your primary task is to role-play according to the scenario. While doing so, you MUST listen for when the user successfully completes one of their goals.
The user's goals for this conversation are:
- Goal 1: "{{GOAL_1}}"
- Goal 2: "{{GOAL_2}}"
- Goal 3: "{{GOAL_3}}"

When a user's utterance clearly and successfully completes a goal, you MUST include a special tag in your transcribed response: [GOAL_COMPLETE: "The exact text of the goal that was completed"].
For example, if a goal is "Ask for the price" and the user says "How much is this?", you must include [GOAL_COMPLETE: "Ask for the price"] in your transcription.
DO NOT say the tag out loud. It is for the system only. Include it seamlessly within your natural response's transcription.
Only mark a goal as complete once.
`

// Scenario is one catalog entry as served to the UI and stored in history.
type Scenario struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Difficulty        Difficulty `json:"difficulty"`
	SystemInstruction string     `json:"systemInstruction"`
	Goals             []string   `json:"goals"`
	ImageURL          string     `json:"imageUrl"`
	TargetWPM         int        `json:"targetWpm,omitempty"`
}

// entry is the YAML form of a scenario.
type entry struct {
	Title         string     `yaml:"title"`
	Description   string     `yaml:"description"`
	Difficulty    Difficulty `yaml:"difficulty"`
	Goals         []string   `yaml:"goals"`
	TargetWPM     int        `yaml:"target_wpm"`
	Instruction   string     `yaml:"instruction"`
	ImageKeywords string     `yaml:"image_keywords"`
}

type catalogFile struct {
	Scenarios []entry `yaml:"scenarios"`
}

// ID derives a scenario id from its title: lowercase with spaces replaced by
// dashes.
func ID(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// ImageURL returns the placeholder image for a scenario id.
func ImageURL(id string) string {
	return "https://picsum.photos/seed/" + id + "/400/200"
}

// SystemInstruction appends the goal-tracking instruction for goals to base.
func SystemInstruction(base string, goals []string) string {
	instr := goalTrackingTemplate
	for i, g := range goals {
		instr = strings.Replace(instr, fmt.Sprintf("{{GOAL_%d}}", i+1), g, 1)
	}
	return base + "\n\n" + instr
}

func (e entry) build() Scenario {
	id := ID(e.Title)
	return Scenario{
		ID:                id,
		Title:             e.Title,
		Description:       e.Description,
		Difficulty:        e.Difficulty,
		SystemInstruction: SystemInstruction(e.Instruction, e.Goals),
		Goals:             slices.Clone(e.Goals),
		ImageURL:          ImageURL(id),
		TargetWPM:         e.TargetWPM,
	}
}

func (e entry) validate(i int) []error {
	var errs []error
	where := fmt.Sprintf("scenarios[%d]", i)
	if e.Title != "" {
		where += fmt.Sprintf(" (%s)", e.Title)
	}
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, fmt.Errorf("%s: title is required", where))
	}
	if !e.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("%s: difficulty %q is invalid; valid values: Easy, Medium, Hard", where, e.Difficulty))
	}
	if len(e.Goals) != GoalCount {
		errs = append(errs, fmt.Errorf("%s: want %d goals, got %d", where, GoalCount, len(e.Goals)))
	}
	for j, g := range e.Goals {
		if strings.TrimSpace(g) == "" {
			errs = append(errs, fmt.Errorf("%s: goals[%d] is empty", where, j))
		}
	}
	if strings.TrimSpace(e.Instruction) == "" {
		errs = append(errs, fmt.Errorf("%s: instruction is required", where))
	}
	if e.TargetWPM < 0 {
		errs = append(errs, fmt.Errorf("%s: target_wpm must not be negative", where))
	}
	return errs
}

// Catalog is an immutable, ordered set of scenarios.
type Catalog struct {
	scenarios []Scenario
	byID      map[string]int
}

// Parse decodes and validates a YAML catalog. Unknown fields, invalid
// entries and duplicate ids are all reported together.
func Parse(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("scenario: decode yaml: %w", err)
	}

	var errs []error
	if len(f.Scenarios) == 0 {
		errs = append(errs, errors.New("catalog has no scenarios"))
	}
	c := &Catalog{byID: make(map[string]int, len(f.Scenarios))}
	for i, e := range f.Scenarios {
		if entryErrs := e.validate(i); len(entryErrs) > 0 {
			errs = append(errs, entryErrs...)
			continue
		}
		s := e.build()
		if _, dup := c.byID[s.ID]; dup {
			errs = append(errs, fmt.Errorf("scenarios[%d]: duplicate id %q", i, s.ID))
			continue
		}
		c.byID[s.ID] = len(c.scenarios)
		c.scenarios = append(c.scenarios, s)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("scenario: invalid catalog: %w", errors.Join(errs...))
	}
	return c, nil
}

// ParseFile reads a catalog from path.
func ParseFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the embedded catalog.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := Parse(bytes.NewReader(builtinCatalog))
		if err != nil {
			panic(fmt.Sprintf("scenario: embedded catalog is invalid: %v", err))
		}
		builtin = c
	})
	return builtin
}

// Len returns the number of scenarios.
func (c *Catalog) Len() int { return len(c.scenarios) }

// List returns every scenario in catalog order.
func (c *Catalog) List() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	for i, s := range c.scenarios {
		out[i] = s.clone()
	}
	return out
}

// Get returns the scenario with the given id.
func (c *Catalog) Get(id string) (Scenario, error) {
	i, ok := c.byID[id]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.scenarios[i].clone(), nil
}

// ByDifficulty returns the scenarios of grade d in catalog order.
func (c *Catalog) ByDifficulty(d Difficulty) []Scenario {
	var out []Scenario
	for _, s := range c.scenarios {
		if s.Difficulty == d {
			out = append(out, s.clone())
		}
	}
	return out
}

func (s Scenario) clone() Scenario {
	s.Goals = slices.Clone(s.Goals)
	return s
}
