package classifier

// Source tells where a successful label came from.
type Source string

const (
	SourceModel Source = "model"
	SourceCache Source = "cache"
)

// Result is either Ok with a label or Err with a reason.
type Result struct {
	label  Label
	source Source
	reason string
	ok     bool
}

func Ok(label Label, source Source) Result {
	return Result{label: label, source: source, ok: true}
}

func Err(reason string) Result {
	return Result{reason: reason}
}

func (r Result) IsOk() bool { return r.ok }

// Label returns the label and true for Ok results.
func (r Result) Label() (Label, bool) {
	return r.label, r.ok
}

func (r Result) Source() Source { return r.source }

func (r Result) Reason() string { return r.reason }

// LabelOrUnknown is the label to persist: LabelUnknown for Err results.
func (r Result) LabelOrUnknown() Label {
	if !r.ok {
		return LabelUnknown
	}
	return r.label
}
