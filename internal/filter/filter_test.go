package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScenarioThankYouForApplying(t *testing.T) {
	doc := Document{{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"thank you for applying"}}}

	if !doc.Evaluate("Thank You For Applying to Acme", "jobs@acme.com") {
		t.Error("Evaluate() = false, want true")
	}
	if q := CompileQuery(doc); !strings.Contains(q, `subject:"thank you for applying"`) {
		t.Errorf("CompileQuery() = %q, missing subject clause", q)
	}
}

func TestCompileQuery(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "include with wildcard then exclude",
			doc: Document{
				{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"thank you for applying", "application to * submitted"}},
				{Field: FieldSubject, How: HowExclude, Logic: LogicAll, Terms: []string{"watering", "newsletter"}},
			},
			want: `(subject:"thank you for applying" OR (subject:"application to" AND subject:"submitted") AND -subject:"watering" AND -subject:"newsletter")`,
		},
		{
			name: "two include blocks",
			doc: Document{
				{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"applied to"}},
				{Field: FieldFrom, How: HowInclude, Logic: LogicAny, Terms: []string{"careers@", "no-reply@ashbyhq.com"}},
			},
			want: `(subject:"applied to" OR from:"careers@" OR from:"no-reply@ashbyhq.com")`,
		},
		{
			name: "body has no field prefix",
			doc: Document{
				{Field: FieldBody, How: HowInclude, Logic: LogicAny, Terms: []string{"interview"}},
				{Field: FieldBody, How: HowExclude, Logic: LogicAll, Terms: []string{"unsubscribe"}},
			},
			want: `("interview" AND -"unsubscribe")`,
		},
		{
			name: "empty document",
			doc:  Document{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, CompileQuery(tt.doc)); diff != "" {
				t.Errorf("CompileQuery() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExcludeBlockVetoesInclude(t *testing.T) {
	doc := Document{
		{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"application received"}},
		{Field: FieldSubject, How: HowExclude, Logic: LogicAll, Terms: []string{"watering", "digest"}},
	}

	tests := []struct {
		subject string
		want    bool
	}{
		{"Application Received - Acme", true},
		{"Application received: watering digest", false},
		{"application received (digest)", false},
		{"Weekly digest", false},
		{"Watering schedule", false},
	}
	for _, tt := range tests {
		if got := doc.Evaluate(tt.subject, ""); got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.subject, got, tt.want)
		}
	}
}

func TestWildcardRequiresEverySegment(t *testing.T) {
	doc := Document{{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"your application * received"}}}

	tests := []struct {
		subject string
		want    bool
	}{
		{"Your application to Acme has been RECEIVED", true},
		{"Received: your application", true},
		{"Your application to Acme", false},
		{"We received it", false},
	}
	for _, tt := range tests {
		if got := doc.Evaluate(tt.subject, ""); got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.subject, got, tt.want)
		}
	}
}

func TestEvaluateFromField(t *testing.T) {
	doc := Document{
		{Field: FieldSubject, How: HowInclude, Logic: LogicAny, Terms: []string{"applied to"}},
		{Field: FieldFrom, How: HowInclude, Logic: LogicAny, Terms: []string{"notification@smartrecruiters.com"}},
		{Field: FieldFrom, How: HowExclude, Logic: LogicAll, Terms: []string{"marketing"}},
	}

	tests := []struct {
		subject, from string
		want          bool
	}{
		{"Hello", "Acme <notification@smartrecruiters.com>", true},
		{"You applied to Acme", "jobs@acme.com", true},
		{"You applied to Acme", "marketing@acme.com", false},
		{"Hello", "someone@example.com", false},
	}
	for _, tt := range tests {
		if got := doc.Evaluate(tt.subject, tt.from); got != tt.want {
			t.Errorf("Evaluate(%q, %q) = %v, want %v", tt.subject, tt.from, got, tt.want)
		}
	}
}

func TestOverrideDocument(t *testing.T) {
	doc := OverrideDocument{
		{
			{Field: FieldSubject, IncludeTerms: []string{"thank"}, ExcludeTerms: []string{"spam"}},
			{Field: FieldFrom, IncludeTerms: []string{"careers@"}},
		},
		{
			{Field: FieldSubject, IncludeTerms: []string{"offer"}},
		},
	}

	want := `((subject:"thank" AND -subject:"spam" AND from:"careers@") OR (subject:"offer"))`
	if diff := cmp.Diff(want, CompileOverrideQuery(doc)); diff != "" {
		t.Errorf("CompileOverrideQuery() mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		subject, from string
		want          bool
	}{
		{"Thank you", "careers@acme.com", true},
		{"Thank you, not spam", "careers@acme.com", false},
		{"Thank you", "noreply@acme.com", false},
		{"Hello", "careers@acme.com", false},
	}
	for _, tt := range tests {
		if got := doc.Evaluate(tt.subject, tt.from); got != tt.want {
			t.Errorf("Evaluate(%q, %q) = %v, want %v", tt.subject, tt.from, got, tt.want)
		}
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "exclude with any",
			yaml: `
- {field: subject, how: include, logic: any, terms: [a]}
- {field: subject, how: exclude, logic: any, terms: [b]}`,
		},
		{
			name: "include with all",
			yaml: `- {field: subject, how: include, logic: all, terms: [a]}`,
		},
		{
			name: "wildcard in exclude",
			yaml: `
- {field: subject, how: include, logic: any, terms: [a]}
- {field: subject, how: exclude, logic: all, terms: ["x * y"]}`,
		},
		{
			name: "exclude before include",
			yaml: `
- {field: subject, how: exclude, logic: all, terms: [b]}
- {field: subject, how: include, logic: any, terms: [a]}`,
		},
		{
			name: "include after exclude",
			yaml: `
- {field: subject, how: include, logic: any, terms: ["thank you for applying"]}
- {field: subject, how: exclude, logic: all, terms: [newsletter]}
- {field: subject, how: include, logic: any, terms: [newsletter]}`,
		},
		{
			name: "unknown field",
			yaml: `- {field: cc, how: include, logic: any, terms: [a]}`,
		},
		{
			name: "unknown key",
			yaml: `- {field: subject, how: include, logic: any, words: [a]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if !errors.Is(err, ErrSchema) {
				t.Errorf("Load() error = %v, want ErrSchema", err)
			}
		})
	}
}

func TestLoadOverrideRejectsNullIncludeTerms(t *testing.T) {
	_, err := LoadOverride(strings.NewReader(`
- - field: subject
    include_terms: null
    exclude_terms: [spam]`))
	if !errors.Is(err, ErrSchema) {
		t.Errorf("LoadOverride() error = %v, want ErrSchema", err)
	}

	doc, err := LoadOverride(strings.NewReader(`
- - field: subject
    include_terms: [thank]
    exclude_terms: null`))
	if err != nil {
		t.Fatalf("LoadOverride() error = %v", err)
	}
	if len(doc) != 1 || len(doc[0]) != 1 {
		t.Errorf("LoadOverride() = %+v", doc)
	}
}

func TestDefaultSet(t *testing.T) {
	s, err := NewSet("", "")
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}

	q := s.Query()
	for _, want := range []string{`subject:"thank you for applying"`, `-subject:"watering"`, `from:"no-reply@ashbyhq.com"`} {
		if !strings.Contains(q, want) {
			t.Errorf("Query() missing %s", want)
		}
	}

	tests := []struct {
		subject, from string
		want          bool
	}{
		{"Thank you for applying to Acme", "Acme Talent <jobs@acme.com>", true},
		{"Thanks!", "Ashby <no-reply@ashbyhq.com>", true},
		{"We received your application - watering tips", "garden@example.com", false},
		{"Weekly newsletter", "news@example.com", false},
	}
	for _, tt := range tests {
		if got := s.Match(tt.subject, tt.from); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.subject, tt.from, got, tt.want)
		}
	}
}
