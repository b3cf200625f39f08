// Package classifier labels job-application emails with a life-cycle status.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jobtracker/internal/llm"
	"jobtracker/pkg/logger"
	"jobtracker/pkg/metrics"
)

const classifySystem = "You classify job-application emails. Answer with JSON only."

type Classifier struct {
	model   llm.Completer
	fps     FalsePositiveSet
	retrier *Retrier
	logger  *zap.Logger
}

func NewClassifier(model llm.Completer, fps FalsePositiveSet, retrier *Retrier, logger *zap.Logger) *Classifier {
	return &Classifier{
		model:   model,
		fps:     fps,
		retrier: retrier,
		logger:  logger,
	}
}

// Classify returns Ok with a label from Labels, or Err when the model could
// not produce one. messageID may be empty, which disables the false-positive set.
func (c *Classifier) Classify(ctx context.Context, text, messageID string) Result {
	log := logger.WithTrace(ctx, c.logger).With(zap.String("message_id", messageID))

	if messageID != "" && c.fps != nil {
		known, err := c.fps.Contains(ctx, messageID)
		if err != nil {
			log.Warn("False-positive lookup failed", zap.Error(err))
		} else if known {
			metrics.IncrementClassification(string(LabelFalsePositive), string(SourceCache))
			return Ok(LabelFalsePositive, SourceCache)
		}
	}

	var label Label
	err := c.retrier.Do(ctx, "classify", func(ctx context.Context) error {
		raw, err := c.model.Complete(ctx, llm.Request{
			Purpose: "classify",
			System:  classifySystem,
			Prompt:  ClassifyPrompt(text),
			JSON:    true,
		})
		if err != nil {
			return err
		}
		l, err := ParseResponse(raw)
		if err != nil {
			return Permanent(err)
		}
		label = l
		return nil
	})
	if err != nil {
		log.Warn("Classification failed", zap.Error(err))
		metrics.IncrementClassification(string(LabelUnknown), "fallback")
		return Err(err.Error())
	}

	metrics.IncrementClassification(string(label), string(SourceModel))
	if label == LabelFalsePositive && messageID != "" && c.fps != nil {
		if err := c.fps.Add(ctx, messageID); err != nil {
			log.Warn("Failed to record false positive", zap.Error(err))
		}
	}
	return Ok(label, SourceModel)
}

// ErrMalformedResponse wraps unusable model output.
var ErrMalformedResponse = errors.New("classifier: malformed model response")

// ParseResponse reads {"application_status": "..."} from raw model output,
// tolerating code fences and single quotes.
func ParseResponse(raw string) (Label, error) {
	cleaned := StripFences(raw)
	if !strings.Contains(cleaned, `"`) {
		cleaned = strings.ReplaceAll(cleaned, "'", `"`)
	}

	var out struct {
		ApplicationStatus string `json:"application_status"`
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	label, ok := ParseLabel(out.ApplicationStatus)
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, out.ApplicationStatus)
	}
	return label, nil
}

// StripFences removes markdown code fences and a leading json tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "json") {
		s = strings.TrimSpace(s[len("json"):])
	}
	return s
}

// ClassifyPrompt enumerates the closed label set and the rule for each label.
func ClassifyPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract the job application status from the following email.\n")
	b.WriteString("Job application status must be one of these exact values:\n")
	for _, l := range Labels {
		fmt.Fprintf(&b, "- %q\n", string(l))
	}
	b.WriteString("\nRules for determining status:\n")
	for _, l := range Labels {
		fmt.Fprintf(&b, "- %q %s\n", string(l), labelRules[l])
	}
	b.WriteString("\nProvide the output in JSON format with only the application_status field.\n")
	b.WriteString(`Example: {"application_status": "Application confirmation"}`)
	b.WriteString("\n\nEmail:\n")
	b.WriteString(text)
	return b.String()
}
