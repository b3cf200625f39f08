package classifier

import "strings"

// Label is an application life-cycle status.
type Label string

const (
	LabelFalsePositive      Label = "False positive"
	LabelConfirmation       Label = "Application confirmation"
	LabelRejection          Label = "Rejection"
	LabelAvailability       Label = "Availability request"
	LabelInformationRequest Label = "Information request"
	LabelAssessment         Label = "Assessment sent"
	LabelInterview          Label = "Interview invitation"
	LabelReachedOut         Label = "Did not apply - they reached out"
	LabelActionRequired     Label = "Action required from company"
	LabelHiringFreeze       Label = "Hiring freeze notification"
	LabelWithdrew           Label = "Withdrew application"
	LabelOffer              Label = "Offer"

	// LabelUnknown is stored when classification fails. It is not a model output.
	LabelUnknown Label = "unknown"
)

// Labels is the closed set the model may answer with, in prompt order.
var Labels = []Label{
	LabelFalsePositive,
	LabelConfirmation,
	LabelRejection,
	LabelAvailability,
	LabelInformationRequest,
	LabelAssessment,
	LabelInterview,
	LabelReachedOut,
	LabelActionRequired,
	LabelHiringFreeze,
	LabelWithdrew,
	LabelOffer,
}

var labelRules = map[Label]string{
	LabelFalsePositive:      "if the email is not related to a job application",
	LabelConfirmation:       `for standard "we received your application" emails`,
	LabelRejection:          `for any explicit rejection or "not moving forward" message`,
	LabelAvailability:       "when company asks for candidate's availability",
	LabelInformationRequest: "when company needs additional information",
	LabelAssessment:         "when company sends a test/assessment",
	LabelInterview:          "when company invites to interview",
	LabelReachedOut:         "when company initiated contact",
	LabelActionRequired:     "when waiting on company's response",
	LabelHiringFreeze:       "when position is frozen/closed",
	LabelWithdrew:           "when candidate withdrew",
	LabelOffer:              "when a job offer is extended",
}

// ParseLabel maps s onto the closed set, ignoring case and surrounding space.
func ParseLabel(s string) (Label, bool) {
	s = strings.TrimSpace(s)
	for _, l := range Labels {
		if strings.EqualFold(s, string(l)) {
			return l, true
		}
	}
	return "", false
}

// IsApplication reports whether the label describes a genuine application message.
func (l Label) IsApplication() bool {
	return l != LabelFalsePositive && l != LabelUnknown && l != ""
}
