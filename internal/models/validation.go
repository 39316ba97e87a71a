package models

import (
	"fmt"
	"strings"
)

// FieldError is one validation failure, tied to the field (or node) that
// caused it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors accumulates independent validation failures so a caller
// sees every problem in one response rather than fixing them one at a time.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationErrors returns an empty accumulator.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Addf records a failure against a field.
func (v *ValidationErrors) Addf(field, format string, args ...interface{}) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any failure was recorded.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// ErrOrNil returns v as an error when failures were recorded, nil otherwise.
func (v *ValidationErrors) ErrOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidateNode checks one node's own fields, independent of tree structure.
// Structural checks (parent/child consistency, cycles) happen at index build.
func ValidateNode(node *RiskNode, v *ValidationErrors) {
	if node.ID == "" {
		v.Addf("node.id", "node id is required")
	}
	field := func(name string) string {
		return fmt.Sprintf("node[%s].%s", node.ID, name)
	}

	switch node.Kind {
	case NodeKindLeaf:
		if node.OccurrenceProb <= 0 || node.OccurrenceProb >= 1 {
			v.Addf(field("occurrence_prob"), "must be in (0,1), got %v", node.OccurrenceProb)
		}
		if node.Distribution == nil {
			v.Addf(field("distribution"), "leaf requires a distribution")
		} else {
			validateDistribution(node.Distribution, field("distribution"), v)
		}
		if len(node.ChildIDs) > 0 {
			v.Addf(field("child_ids"), "leaf cannot have children")
		}
	case NodeKindPortfolio:
		if node.Distribution != nil {
			v.Addf(field("distribution"), "portfolio cannot carry a distribution")
		}
	default:
		v.Addf(field("kind"), "unknown node kind %q", node.Kind)
	}
}

func validateDistribution(d *DistributionSpec, field string, v *ValidationErrors) {
	switch d.Kind {
	case DistributionPercentile:
		if len(d.Percentiles) < 3 {
			v.Addf(field, "percentile fit requires at least 3 control points, got %d", len(d.Percentiles))
			return
		}
		for i, p := range d.Percentiles {
			if p.Probability <= 0 || p.Probability >= 1 {
				v.Addf(field, "control point %d probability must be in (0,1), got %v", i, p.Probability)
			}
			if p.Loss <= 0 {
				v.Addf(field, "control point %d loss must be positive, got %v", i, p.Loss)
			}
		}
	case DistributionInterval:
		if d.Low <= 0 {
			v.Addf(field, "interval low bound must be positive, got %v", d.Low)
		}
		if d.High < d.Low {
			v.Addf(field, "interval high bound %v is below low bound %v", d.High, d.Low)
		}
	default:
		v.Addf(field, "unknown distribution kind %q", d.Kind)
	}
}
