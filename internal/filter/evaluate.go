package filter

import "strings"

func containsFold(text, term string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(term))
}

// wildcardMatch is true when every segment appears in text, in any order.
func wildcardMatch(text, term string) bool {
	for _, s := range segments(term) {
		if !containsFold(text, s) {
			return false
		}
	}
	return true
}

// Evaluate reports whether a (subject, from) pair passes the document.
// Body blocks only affect the compiled query.
func (d Document) Evaluate(subject, from string) bool {
	matched := false
	for _, r := range d {
		var text string
		switch r.Field {
		case FieldSubject:
			text = subject
		case FieldFrom:
			text = from
		default:
			continue
		}

		if r.How == HowInclude && r.Logic == LogicAny && !matched {
			for _, t := range r.Terms {
				if !isWildcard(t) && containsFold(text, t) {
					matched = true
					break
				}
			}
			if !matched {
				for _, t := range r.Terms {
					if isWildcard(t) && wildcardMatch(text, t) {
						matched = true
						break
					}
				}
			}
		}

		if matched && r.How == HowExclude && r.Logic == LogicAll {
			for _, t := range r.Terms {
				if containsFold(text, t) {
					matched = false
					break
				}
			}
		}
	}
	return matched
}

// Evaluate is conjunctive across subject and from. Any exclude hit vetoes.
func (d OverrideDocument) Evaluate(subject, from string) bool {
	return d.evaluateField(subject, FieldSubject) && d.evaluateField(from, FieldFrom)
}

func (d OverrideDocument) evaluateField(text, field string) bool {
	matched := false
	for _, g := range d {
		for _, t := range g {
			if t.Field != field {
				continue
			}
			for _, term := range t.IncludeTerms {
				if containsFold(text, term) {
					matched = true
				}
			}
			for _, term := range t.ExcludeTerms {
				if containsFold(text, term) {
					return false
				}
			}
		}
	}
	return matched
}
