// Package filter compiles declarative include/exclude rule documents into
// mailbox search queries and evaluates the same rules locally.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema is wrapped by every rule document validation failure.
var ErrSchema = errors.New("filter: schema violation")

// Wildcard splits a term into segments that must all match.
const Wildcard = "*"

const (
	FieldSubject = "subject"
	FieldFrom    = "from"
	FieldBody    = "body"

	HowInclude = "include"
	HowExclude = "exclude"

	LogicAny = "any"
	LogicAll = "all"
)

// Rule is one block of a base rule document.
type Rule struct {
	Field string   `yaml:"field"`
	How   string   `yaml:"how"`
	Logic string   `yaml:"logic"`
	Terms []string `yaml:"terms"`
}

// Document is an ordered list of rule blocks. Order matters: exclude blocks
// can only veto a match produced by an earlier include block.
type Document []Rule

// OverrideTerm is one field clause of an override group.
type OverrideTerm struct {
	Field        string   `yaml:"field"`
	IncludeTerms []string `yaml:"include_terms"`
	ExcludeTerms []string `yaml:"exclude_terms"`
}

// OverrideGroup clauses are AND-joined.
type OverrideGroup []OverrideTerm

// OverrideDocument groups are OR-joined.
type OverrideDocument []OverrideGroup

func validField(f string) bool {
	return f == FieldSubject || f == FieldFrom || f == FieldBody
}

func isWildcard(term string) bool {
	return strings.Contains(term, Wildcard)
}

// segments returns the non-empty, trimmed parts of a wildcard term.
func segments(term string) []string {
	parts := strings.Split(term, Wildcard)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first schema violation in the document.
func (d Document) Validate() error {
	includeSeen, excludeSeen := false, false
	for i, r := range d {
		if !validField(r.Field) {
			return fmt.Errorf("%w: block %d: unknown field %q", ErrSchema, i, r.Field)
		}
		switch r.How {
		case HowInclude:
			if r.Logic != LogicAny {
				return fmt.Errorf("%w: block %d: include blocks must use logic=any", ErrSchema, i)
			}
			if excludeSeen {
				return fmt.Errorf("%w: block %d: include block after an exclude block", ErrSchema, i)
			}
			includeSeen = true
		case HowExclude:
			if r.Logic != LogicAll {
				return fmt.Errorf("%w: block %d: exclude blocks must use logic=all", ErrSchema, i)
			}
			if !includeSeen {
				return fmt.Errorf("%w: block %d: exclude block before any include block", ErrSchema, i)
			}
			excludeSeen = true
			for _, t := range r.Terms {
				if isWildcard(t) {
					return fmt.Errorf("%w: block %d: wildcard term %q in exclude block", ErrSchema, i, t)
				}
			}
		default:
			return fmt.Errorf("%w: block %d: unknown how %q", ErrSchema, i, r.How)
		}
		for _, t := range r.Terms {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("%w: block %d: empty term", ErrSchema, i)
			}
			if isWildcard(t) && len(segments(t)) == 0 {
				return fmt.Errorf("%w: block %d: wildcard term %q has no segments", ErrSchema, i, t)
			}
		}
	}
	return nil
}

// Validate reports the first schema violation in the override document.
func (d OverrideDocument) Validate() error {
	for i, g := range d {
		for j, t := range g {
			if !validField(t.Field) {
				return fmt.Errorf("%w: group %d clause %d: unknown field %q", ErrSchema, i, j, t.Field)
			}
			if t.IncludeTerms == nil {
				return fmt.Errorf("%w: group %d clause %d: include_terms must not be null", ErrSchema, i, j)
			}
		}
	}
	return nil
}
