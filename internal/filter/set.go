package filter

// Set pairs the base document with the override document.
type Set struct {
	Base     Document
	Override OverrideDocument
}

// NewSet loads rule documents from the given paths, falling back to the
// embedded defaults for empty paths.
func NewSet(rulesPath, overridePath string) (*Set, error) {
	s := &Set{}
	var err error
	if rulesPath == "" {
		s.Base = Default()
	} else if s.Base, err = LoadFile(rulesPath); err != nil {
		return nil, err
	}
	if overridePath == "" {
		s.Override = DefaultOverride()
	} else if s.Override, err = LoadOverrideFile(overridePath); err != nil {
		return nil, err
	}
	return s, nil
}

// Query is the provider search query: base OR override.
func (s *Set) Query() string {
	base := CompileQuery(s.Base)
	override := CompileOverrideQuery(s.Override)
	switch {
	case base == "":
		return override
	case override == "":
		return base
	default:
		return base + " OR " + override
	}
}

// Match re-validates a message locally against both documents.
func (s *Set) Match(subject, from string) bool {
	if s.Base.Evaluate(subject, from) {
		return true
	}
	return len(s.Override) > 0 && s.Override.Evaluate(subject, from)
}
