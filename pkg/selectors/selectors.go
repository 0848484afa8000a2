// Package selectors holds the versioned table of WhatsApp Web element
// lookups. WhatsApp's markup and UI language change independently of this
// tool, so selectors are configuration keyed by logical role rather than
// literals in the automation code.
package selectors

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"dev/bravebird/wagroup/pkg/models"
)

const (
	// ProfilePrimary matches the Hebrew UI with icon-based navigation controls
	ProfilePrimary = "primary"
	// ProfileTestID uses data-testid navigation controls
	ProfileTestID = "testid"

	// BuiltinVersion identifies the markup the built-in profiles were written against
	BuiltinVersion = "2024.1"
)

// Builtin returns the profiles shipped with the binary
func Builtin() map[string]models.SelectorTable {
	primary := models.SelectorTable{
		Profile: ProfilePrimary,
		Version: BuiltinVersion,
		Selectors: map[models.Role]models.Selector{
			models.RoleMenu:         models.CSS(`div[aria-label="תפריט"]`),
			models.RoleNewGroup:     models.XPath(`//div[text()="קבוצה חדשה"]`),
			models.RoleSearchInput:  models.CSS(`input[placeholder="אפשר לחפש שם או מספר"]`),
			models.RoleSearchResult: models.CSS(`span[title]`),
			models.RoleAdvance:      models.CSS(`span[data-icon="arrow-forward"]`),
			models.RoleGroupName:    models.CSS(`div[contenteditable="true"][data-lexical-editor="true"]`),
			models.RoleConfirm:      models.CSS(`span[data-icon="checkmark-medium"]`),
		},
	}

	testid := primary.Clone()
	testid.Profile = ProfileTestID
	testid.Selectors[models.RoleAdvance] = models.XPath(`//div[@data-testid="next"]`)
	testid.Selectors[models.RoleGroupName] = models.XPath(`//div[@contenteditable="true"]`)
	testid.Selectors[models.RoleConfirm] = models.XPath(`//div[@data-testid="checkmark-medium"]`)

	return map[string]models.SelectorTable{
		ProfilePrimary: primary,
		ProfileTestID:  testid,
	}
}

// Default returns the primary built-in profile
func Default() models.SelectorTable {
	return Builtin()[ProfilePrimary]
}

// File is the on-disk selector table format
//
//	version: "2025.03"
//	profiles:
//	  english:
//	    menu: {css: 'div[aria-label="Menu"]'}
//	    new_group: {xpath: '//div[text()="New group"]'}
type File struct {
	Version  string                      `yaml:"version"`
	Profiles map[string]map[string]Entry `yaml:"profiles"`
}

// Entry is one role's selector; exactly one of CSS and XPath is set
type Entry struct {
	CSS   string `yaml:"css,omitempty"`
	XPath string `yaml:"xpath,omitempty"`
}

func (e Entry) selector() (models.Selector, error) {
	switch {
	case e.CSS != "" && e.XPath != "":
		return models.Selector{}, fmt.Errorf("both css and xpath set")
	case e.CSS != "":
		return models.CSS(e.CSS), nil
	case e.XPath != "":
		return models.XPath(e.XPath), nil
	default:
		return models.Selector{}, fmt.Errorf("neither css nor xpath set")
	}
}

// Parse decodes a selector file into partial tables keyed by profile name
func Parse(data []byte) (map[string]models.SelectorTable, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse selector file: %w", err)
	}

	known := make(map[models.Role]bool)
	for _, r := range append(models.RequiredRoles(), models.RoleLoginMarker) {
		known[r] = true
	}

	tables := make(map[string]models.SelectorTable, len(f.Profiles))
	for name, entries := range f.Profiles {
		t := models.SelectorTable{
			Profile:   name,
			Version:   f.Version,
			Selectors: make(map[models.Role]models.Selector, len(entries)),
		}
		for roleName, entry := range entries {
			role := models.Role(roleName)
			if !known[role] {
				return nil, fmt.Errorf("profile %q: unknown role %q", name, roleName)
			}
			sel, err := entry.selector()
			if err != nil {
				return nil, fmt.Errorf("profile %q role %q: %w", name, roleName, err)
			}
			t.Selectors[role] = sel
		}
		tables[name] = t
	}

	return tables, nil
}

// LoadFile reads and parses a selector file
func LoadFile(path string) (map[string]models.SelectorTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selector file: %w", err)
	}
	return Parse(data)
}

// Resolve returns the validated table for profile. Profiles from the file at
// path (optional) are layered over the built-ins role by role, so a file can
// patch a single selector of a built-in profile or define a complete new one.
func Resolve(path, profile string) (models.SelectorTable, error) {
	if profile == "" {
		profile = ProfilePrimary
	}

	tables := Builtin()
	if path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return models.SelectorTable{}, err
		}
		for name, t := range fromFile {
			base, ok := tables[name]
			if !ok {
				tables[name] = t
				continue
			}
			merged := base.Clone()
			for role, sel := range t.Selectors {
				merged.Selectors[role] = sel
			}
			if t.Version != "" {
				merged.Version = t.Version
			}
			tables[name] = merged
		}
	}

	t, ok := tables[profile]
	if !ok {
		return models.SelectorTable{}, fmt.Errorf("unknown selector profile %q (available: %s)",
			profile, strings.Join(names(tables), ", "))
	}
	if err := Validate(t); err != nil {
		return models.SelectorTable{}, err
	}
	return t, nil
}

// Validate checks that every required role has a usable selector
func Validate(t models.SelectorTable) error {
	var missing []string
	for _, role := range models.RequiredRoles() {
		if _, ok := t.Lookup(role); !ok {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("selector profile %q is missing roles: %s", t.Profile, strings.Join(missing, ", "))
	}

	for role, sel := range t.Selectors {
		if sel.Kind != models.SelectorCSS && sel.Kind != models.SelectorXPath {
			return fmt.Errorf("selector profile %q role %q: unsupported kind %q", t.Profile, role, sel.Kind)
		}
	}
	return nil
}

// Marshal renders a table in the file format, for display
func Marshal(t models.SelectorTable) ([]byte, error) {
	entries := make(map[string]Entry, len(t.Selectors))
	for role, sel := range t.Selectors {
		switch sel.Kind {
		case models.SelectorXPath:
			entries[string(role)] = Entry{XPath: sel.Value}
		default:
			entries[string(role)] = Entry{CSS: sel.Value}
		}
	}
	return yaml.Marshal(File{
		Version:  t.Version,
		Profiles: map[string]map[string]Entry{t.Profile: entries},
	})
}

func names(tables map[string]models.SelectorTable) []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
