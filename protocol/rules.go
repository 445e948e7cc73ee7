package protocol

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/linesmerrill/camp-cad-api/models"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the versioned keyword table the engine evaluates answers with
type Rules struct {
	Version    string         `yaml:"version"`
	Tiers      []PriorityTier `yaml:"priority_tiers"`
	Units      []UnitRule     `yaml:"units"`
	BaseUnits  []UnitRule     `yaml:"base_units"`
	Directives []Directive    `yaml:"directives"`
}

// PriorityTier clamps the priority to at most Priority when any keyword matches
type PriorityTier struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// UnitRule recommends a unit category when any keyword matches
type UnitRule struct {
	Unit     string   `yaml:"unit"`
	Keywords []string `yaml:"keywords"`
}

// Directive appends Lines to the response plan when Keyword matches
type Directive struct {
	Keyword string   `yaml:"keyword"`
	Lines   []string `yaml:"lines"`
}

// DefaultRules returns the embedded rule table
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads the rule table at path, or the embedded one when path is empty
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(b)
}

// ParseRules decodes and checks a rule table
func ParseRules(b []byte) (*Rules, error) {
	r := &Rules{}
	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	r.normalize()
	return r, nil
}

func (r *Rules) check() error {
	var errs error
	if r.Version == "" {
		errs = multierr.Append(errs, fmt.Errorf("rules: version is required"))
	}
	for _, t := range r.Tiers {
		if t.Priority < models.MostUrgentPriority || t.Priority > models.LeastUrgentPriority {
			errs = multierr.Append(errs, fmt.Errorf("rules: tier %q has priority %d outside %d-%d",
				t.Name, t.Priority, models.MostUrgentPriority, models.LeastUrgentPriority))
		}
	}
	for _, u := range append(append([]UnitRule{}, r.Units...), r.BaseUnits...) {
		if u.Unit == "" {
			errs = multierr.Append(errs, fmt.Errorf("rules: unit rule without a unit"))
		}
	}
	for _, d := range r.Directives {
		if d.Keyword == "" {
			errs = multierr.Append(errs, fmt.Errorf("rules: directive without a keyword"))
		}
	}
	return errs
}

func (r *Rules) normalize() {
	for i := range r.Tiers {
		r.Tiers[i].Keywords = lowerAll(r.Tiers[i].Keywords)
	}
	for i := range r.Units {
		r.Units[i].Keywords = lowerAll(r.Units[i].Keywords)
	}
	for i := range r.BaseUnits {
		r.BaseUnits[i].Keywords = lowerAll(r.BaseUnits[i].Keywords)
	}
	for i := range r.Directives {
		r.Directives[i].Keyword = strings.ToLower(r.Directives[i].Keyword)
	}
}

// Priority clamps base by every tier matched in texts. It never makes the
// priority less urgent than base.
func (r *Rules) Priority(base int, texts []string) int {
	priority := base
	for _, text := range texts {
		for _, t := range r.Tiers {
			if t.Priority < priority && matchesAny(text, t.Keywords) {
				priority = t.Priority
			}
		}
	}
	return priority
}

// RecommendUnits adds the categories matched in texts to base, without duplicates
func (r *Rules) RecommendUnits(base []string, texts []string) []string {
	units := make([]string, 0, len(base))
	seen := map[string]bool{}
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			units = append(units, u)
		}
	}
	for _, u := range base {
		add(u)
	}
	for _, text := range texts {
		for _, rule := range r.Units {
			if matchesAny(text, rule.Keywords) {
				add(rule.Unit)
			}
		}
	}
	return units
}

// PlanUnits reads unit categories out of a response plan template
func (r *Rules) PlanUnits(plan string) []string {
	plan = strings.ToLower(plan)
	var units []string
	for _, rule := range r.BaseUnits {
		if matchesAny(plan, rule.Keywords) {
			units = append(units, rule.Unit)
		}
	}
	return units
}

// ResponsePlan appends the directives matched in texts to template. Each
// directive is added once.
func (r *Rules) ResponsePlan(template string, texts []string) string {
	var b strings.Builder
	b.WriteString(template)
	for _, d := range r.Directives {
		for _, text := range texts {
			if strings.Contains(text, d.Keyword) {
				for _, line := range d.Lines {
					b.WriteString("\n- ")
					b.WriteString(line)
				}
				break
			}
		}
	}
	return b.String()
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
