package usi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"usirest/client"
)

// Validation outcomes reported per author (Ena, BioSamples, Taxonomy, ...).
const (
	OutcomePass    = "Pass"
	OutcomeWarning = "Warning"
	OutcomeError   = "Error"
)

// ValidationResult is the outcome the remote validation pipeline produced
// for one sample. It is observed, never computed locally.
type ValidationResult struct {
	Version                          int                 `json:"version,omitempty"`
	ValidationStatus                 string              `json:"validationStatus,omitempty"`
	ExpectedResults                  int                 `json:"expectedResults,omitempty"`
	OverallValidationOutcomeByAuthor map[string]string   `json:"overallValidationOutcomeByAuthor,omitempty"`
	ErrorMessages                    map[string][]string `json:"errorMessages,omitempty"`
	Links                            client.Links        `json:"_links,omitempty"`
}

func (v *ValidationResult) String() string {
	msg := v.ValidationStatus
	if len(v.OverallValidationOutcomeByAuthor) > 0 {
		msg += fmt.Sprintf(" %v", v.OverallValidationOutcomeByAuthor)
	}
	return msg
}

// HasErrors reports whether any author not in the ignore list reports an
// Error outcome.
func (v *ValidationResult) HasErrors(ignore ...string) bool {
	has := false
	for author, outcome := range v.OverallValidationOutcomeByAuthor {
		if outcome != OutcomeError || slices.Contains(ignore, author) {
			continue
		}
		if msgs := v.ErrorMessages[author]; len(msgs) > 0 {
			logrus.WithField("author", author).Error(strings.Join(msgs, ", "))
		}
		has = true
	}
	return has
}

// Errors returns the error messages per author, skipping ignored authors.
func (v *ValidationResult) Errors(ignore ...string) map[string][]string {
	out := map[string][]string{}
	for author, outcome := range v.OverallValidationOutcomeByAuthor {
		if outcome != OutcomeError || slices.Contains(ignore, author) {
			continue
		}
		out[author] = v.ErrorMessages[author]
	}
	return out
}
