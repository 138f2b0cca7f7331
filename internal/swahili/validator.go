// Package swahili decides whether a piece of text is written in Swahili.
// Classification itself is delegated to an external model; this package owns
// the thresholds and the failure policy around it.
package swahili

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// minTextLength is the shortest text worth classifying. Anything below
	// this is rejected outright to avoid wasting classifier calls.
	minTextLength = 10

	// CrawlThreshold is the confidence bar used while discovering new
	// accounts. Deliberately loose so the crawl surfaces more candidates.
	CrawlThreshold = 0.90

	// OutputThreshold is the confidence bar applied to posts shown to the
	// user. Stricter than CrawlThreshold to keep the final set precise.
	OutputThreshold = 0.98
)

// Detection is the raw answer from a language classifier.
type Detection struct {
	Language   string
	Confidence float64
}

// Classifier identifies the language of a text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Detection, error)
}

// Result reports whether a text passed validation and at what confidence.
type Result struct {
	IsSwahili  bool
	Confidence float64
}

// Validator wraps a Classifier with length and confidence gating.
type Validator struct {
	classifier Classifier
	logger     *zap.Logger
}

// NewValidator constructs a Validator.
func NewValidator(classifier Classifier, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{classifier: classifier, logger: logger}
}

// Validate classifies text and compares the confidence against threshold.
// Texts shorter than ten characters never reach the classifier. A classifier
// failure is treated as "not Swahili" rather than propagated.
func (v *Validator) Validate(ctx context.Context, text string, threshold float64) Result {
	if utf8.RuneCountInString(text) < minTextLength {
		return Result{}
	}
	det, err := v.classifier.Classify(ctx, text)
	if err != nil {
		v.logger.Debug("classifier call failed", zap.Error(err))
		return Result{}
	}
	if det.Language != "sw" {
		return Result{Confidence: det.Confidence}
	}
	return Result{
		IsSwahili:  det.Confidence >= threshold,
		Confidence: det.Confidence,
	}
}
