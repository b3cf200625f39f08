package filter

import "strings"

func fieldPrefix(field string) string {
	if field == FieldBody {
		return ""
	}
	return field + ":"
}

func clause(field, term string, negate bool) string {
	s := fieldPrefix(field) + `"` + term + `"`
	if negate {
		return "-" + s
	}
	return s
}

// wildcardClause AND-joins one clause per segment as a single unit.
func wildcardClause(field, term string) string {
	segs := segments(term)
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = clause(field, s, false)
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// CompileQuery turns a base rule document into a provider search query.
// Include blocks OR-join their terms; exclude blocks AND-join negated terms
// onto everything compiled so far.
func CompileQuery(doc Document) string {
	var b strings.Builder
	for _, r := range doc {
		op := " OR "
		if r.Logic == LogicAll {
			op = " AND "
		}

		var simple, wild []string
		for _, t := range r.Terms {
			switch {
			case r.How == HowExclude:
				simple = append(simple, clause(r.Field, t, true))
			case isWildcard(t):
				wild = append(wild, wildcardClause(r.Field, t))
			default:
				simple = append(simple, clause(r.Field, t, false))
			}
		}

		parts := append(simple, wild...)
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(op)
		}
		b.WriteString(strings.Join(parts, op))
	}
	if b.Len() == 0 {
		return ""
	}
	return "(" + b.String() + ")"
}

// CompileOverrideQuery compiles each group to an AND-group and OR-joins the groups.
func CompileOverrideQuery(doc OverrideDocument) string {
	var groups []string
	for _, g := range doc {
		var parts []string
		for _, t := range g {
			for _, term := range t.IncludeTerms {
				parts = append(parts, clause(t.Field, term, false))
			}
			for _, term := range t.ExcludeTerms {
				parts = append(parts, clause(t.Field, term, true))
			}
		}
		if len(parts) > 0 {
			groups = append(groups, "("+strings.Join(parts, " AND ")+")")
		}
	}
	if len(groups) == 0 {
		return ""
	}
	return "(" + strings.Join(groups, " OR ") + ")"
}
