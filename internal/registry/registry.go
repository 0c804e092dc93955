// Package registry holds the static, data-driven merchant pattern table.
// Patterns are grouped by spending domain; groups are tried in a fixed
// priority order and the first matching pattern within a group wins.
package registry

import (
	"fmt"
	"regexp"

	"github.com/tech1ee/finuts/internal/model"
)

// Group is one spending domain's ordered pattern list.
type Group struct {
	Name     string
	Patterns []model.MerchantPattern
	Priority int
}

// Registry is the compiled pattern table, loaded once at startup.
type Registry struct {
	compiled map[string]*regexp.Regexp
	groups   []Group
}

// New compiles a pattern table. Patterns are matched case-insensitively,
// including Cyrillic case folding.
func New(groups []Group) (*Registry, error) {
	r := &Registry{
		groups:   make([]Group, len(groups)),
		compiled: make(map[string]*regexp.Regexp),
	}
	copy(r.groups, groups)
	sortGroups(r.groups)

	for _, group := range r.groups {
		for _, p := range group.Patterns {
			if _, ok := r.compiled[p.Pattern]; ok {
				continue
			}
			re, err := regexp.Compile(`(?i)` + p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q in group %s: %w", p.Pattern, group.Name, err)
			}
			r.compiled[p.Pattern] = re
		}
	}
	return r, nil
}

// Match returns the first pattern matching the text, trying groups in
// priority order.
func (r *Registry) Match(text string) (model.MerchantPattern, bool) {
	for _, group := range r.groups {
		for _, p := range group.Patterns {
			if r.compiled[p.Pattern].MatchString(text) {
				return p, true
			}
		}
	}
	return model.MerchantPattern{}, false
}

// BrandNames returns the display names of every pattern, used by the
// anonymizer to keep known merchant brands out of PII redaction.
func (r *Registry) BrandNames() []string {
	var names []string
	for _, group := range r.groups {
		for _, p := range group.Patterns {
			if p.DisplayName != "" {
				names = append(names, p.DisplayName)
			}
		}
	}
	return names
}

// Groups returns the table in priority order.
func (r *Registry) Groups() []Group {
	return r.groups
}

func sortGroups(groups []Group) {
	for i := 0; i < len(groups)-1; i++ {
		for j := 0; j < len(groups)-i-1; j++ {
			if groups[j].Priority < groups[j+1].Priority {
				groups[j], groups[j+1] = groups[j+1], groups[j]
			}
		}
	}
}
