// Package label describes the contract between the label generation stage
// and the LLM that names clusters.
package label

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/helixml/codeframe/domain/hierarchy"
)

// ErrInvalidLabel is returned when a labeler reply is missing required
// fields or carries values outside the allowed enums.
var ErrInvalidLabel = errors.New("invalid label")

// Request asks for a label for one cluster.
type Request struct {
	Examples       []string
	TargetLanguage string
	// ParentName is set when labeling a sub-cluster so the name can be
	// narrower than its parent's.
	ParentName string
}

// Label is a validated labeler reply.
type Label struct {
	Name        string
	Description string
	Confidence  hierarchy.Confidence
	Frequency   hierarchy.Frequency
}

// Labeler names a cluster from example texts.
type Labeler interface {
	Label(ctx context.Context, req Request) (Label, error)
}

// Parse builds a Label from raw reply fields, rejecting missing values
// rather than filling defaults.
func Parse(name, description, confidence, frequency string) (Label, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return Label{}, fmt.Errorf("%w: missing name", ErrInvalidLabel)
	}
	if description == "" {
		return Label{}, fmt.Errorf("%w: missing description", ErrInvalidLabel)
	}
	c, err := hierarchy.ParseConfidence(confidence)
	if err != nil {
		return Label{}, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	f, err := hierarchy.ParseFrequency(frequency)
	if err != nil {
		return Label{}, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	return Label{Name: name, Description: description, Confidence: c, Frequency: f}, nil
}

// Validate checks the request before a paid call is made.
func (r Request) Validate() error {
	for _, e := range r.Examples {
		if strings.TrimSpace(e) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: no example texts", ErrInvalidLabel)
}
