package calendar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"equity-calendar/internal/model"
)

// Early-close rule names.
const (
	IndependenceEve = "independence_eve"
	BlackFriday     = "black_friday"
	ChristmasEve    = "christmas_eve"
)

// Rules is a declarative holiday composition. Exchange-specific behavior is
// expressed here instead of in code.
type Rules struct {
	Name string `yaml:"name"`

	// Weekdays the exchange trades on. Empty means Monday to Friday.
	Weekdays []string `yaml:"weekdays"`

	// Include names extra holidays computed by this package (good_friday).
	Include []string `yaml:"include"`

	// Exclude names calculator holidays the exchange trades through.
	Exclude []string `yaml:"exclude"`

	// Since maps a holiday name to the first year the exchange observed it.
	Since map[string]int `yaml:"since"`

	// SkipFridayNewYear keeps the exchange open on December 31 when New
	// Year's Day falls on a Saturday.
	SkipFridayNewYear bool `yaml:"skip_friday_new_year"`

	// Closures and Openings are ad-hoc yyyy-mm-dd dates closed or opened
	// regardless of the rules above.
	Closures []string `yaml:"closures"`
	Openings []string `yaml:"openings"`

	// EarlyCloses names the early-close rules in effect.
	EarlyCloses []string `yaml:"early_closes"`
}

// USEquities is the composite calendar used throughout.
func USEquities() Rules {
	return Rules{
		Name:              "us-equities",
		Weekdays:          []string{"mon", "tue", "wed", "thu", "fri"},
		Include:           []string{GoodFriday},
		Exclude:           []string{ColumbusDay, VeteransDay},
		Since:             map[string]int{Juneteenth: 2022},
		SkipFridayNewYear: true,
		Closures: []string{
			"2001-09-11", "2001-09-12", "2001-09-13", "2001-09-14",
			"2004-06-11",
			"2007-01-02",
			"2012-10-29", "2012-10-30",
			"2018-12-05",
			"2025-01-09",
		},
		EarlyCloses: []string{IndependenceEve, BlackFriday, ChristmasEve},
	}
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read calendar rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates YAML rules.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse calendar rules: %w", err)
	}
	if _, err := r.compile(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// compiled is the lookup form of Rules.
type compiled struct {
	weekdays    [7]bool
	include     map[string]bool
	exclude     map[string]bool
	since       map[string]int
	skipFriNY   bool
	closures    map[int]bool
	openings    map[int]bool
	earlyCloses map[string]bool
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

var earlyCloseNames = map[string]bool{IndependenceEve: true, BlackFriday: true, ChristmasEve: true}

func (r Rules) compile() (*compiled, error) {
	c := &compiled{
		include:     make(map[string]bool, len(r.Include)),
		exclude:     make(map[string]bool, len(r.Exclude)),
		since:       r.Since,
		skipFriNY:   r.SkipFridayNewYear,
		closures:    make(map[int]bool, len(r.Closures)),
		openings:    make(map[int]bool, len(r.Openings)),
		earlyCloses: make(map[string]bool, len(r.EarlyCloses)),
	}
	if len(r.Weekdays) == 0 {
		for wd := time.Monday; wd <= time.Friday; wd++ {
			c.weekdays[wd] = true
		}
	}
	for _, name := range r.Weekdays {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("%w: weekday %q", model.ErrInvalidArgument, name)
		}
		c.weekdays[wd] = true
	}
	for _, name := range r.Include {
		if _, ok := extraRules[name]; !ok {
			return nil, fmt.Errorf("%w: unknown included holiday %q", model.ErrInvalidArgument, name)
		}
		c.include[name] = true
	}
	for _, name := range r.Exclude {
		c.exclude[name] = true
	}
	for _, s := range r.Closures {
		d, err := ParseDate(s)
		if err != nil {
			return nil, err
		}
		c.closures[dateKey(d)] = true
	}
	for _, s := range r.Openings {
		d, err := ParseDate(s)
		if err != nil {
			return nil, err
		}
		c.openings[dateKey(d)] = true
	}
	for _, name := range r.EarlyCloses {
		if !earlyCloseNames[name] {
			return nil, fmt.Errorf("%w: unknown early close %q", model.ErrInvalidArgument, name)
		}
		c.earlyCloses[name] = true
	}
	return c, nil
}
