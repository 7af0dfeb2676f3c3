// Package hierarchy models codeframe nodes as a flat parent-referencing list
// and derives the ordered tree from it.
package hierarchy

import (
	"fmt"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain"
)

// Confidence is the labeler's confidence in a code.
type Confidence string

// Confidence values.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence validates a confidence string.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown confidence %q", domain.ErrValidation, s)
}

// Frequency is the labeler's estimate of how common a code is among answers.
type Frequency string

// Frequency values.
const (
	FrequencyVeryCommon Frequency = "very_common"
	FrequencyCommon     Frequency = "common"
	FrequencyOccasional Frequency = "occasional"
	FrequencyRare       Frequency = "rare"
)

// ParseFrequency validates a frequency estimate. Spaces and hyphens are
// accepted in place of underscores.
func ParseFrequency(s string) (Frequency, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch f := Frequency(normalized); f {
	case FrequencyVeryCommon, FrequencyCommon, FrequencyOccasional, FrequencyRare:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown frequency estimate %q", domain.ErrValidation, s)
}

// EditEntry is one entry in a node's edit history.
type EditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Change    string    `json:"change"`
}

// Node is one code in a generation's codeframe.
type Node struct {
	id              int64
	generationID    int64
	parentID        *int64
	name            string
	description     string
	confidence      Confidence
	frequency       Frequency
	exampleTexts    []string
	clusterID       *int
	parentClusterID *int
	displayOrder    int
	isAutoGenerated bool
	isEdited        bool
	editHistory     []EditEntry
	version         int64
	createdAt       time.Time
	updatedAt       time.Time
}

// NewAutoNode creates a node produced by the label generation stage.
func NewAutoNode(
	generationID int64,
	clusterID int,
	parentClusterID *int,
	name, description string,
	confidence Confidence,
	frequency Frequency,
	exampleTexts []string,
) Node {
	cid := clusterID
	return Node{
		generationID:    generationID,
		name:            name,
		description:     description,
		confidence:      confidence,
		frequency:       frequency,
		exampleTexts:    copyStrings(exampleTexts),
		clusterID:       &cid,
		parentClusterID: copyIntPtr(parentClusterID),
		isAutoGenerated: true,
	}
}

// NewManualNode creates a node added by a human editor.
func NewManualNode(
	generationID int64,
	parentID *int64,
	name, description string,
	confidence Confidence,
	frequency Frequency,
	exampleTexts []string,
) Node {
	return Node{
		generationID: generationID,
		parentID:     copyInt64Ptr(parentID),
		name:         name,
		description:  description,
		confidence:   confidence,
		frequency:    frequency,
		exampleTexts: copyStrings(exampleTexts),
		isEdited:     true,
	}
}

// ReconstructNode rebuilds a Node from storage.
func ReconstructNode(
	id, generationID int64,
	parentID *int64,
	name, description string,
	confidence Confidence,
	frequency Frequency,
	exampleTexts []string,
	clusterID, parentClusterID *int,
	displayOrder int,
	isAutoGenerated, isEdited bool,
	editHistory []EditEntry,
	version int64,
	createdAt, updatedAt time.Time,
) Node {
	return Node{
		id:              id,
		generationID:    generationID,
		parentID:        copyInt64Ptr(parentID),
		name:            name,
		description:     description,
		confidence:      confidence,
		frequency:       frequency,
		exampleTexts:    copyStrings(exampleTexts),
		clusterID:       copyIntPtr(clusterID),
		parentClusterID: copyIntPtr(parentClusterID),
		displayOrder:    displayOrder,
		isAutoGenerated: isAutoGenerated,
		isEdited:        isEdited,
		editHistory:     append([]EditEntry(nil), editHistory...),
		version:         version,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

// ID returns the node ID.
func (n Node) ID() int64 { return n.id }

// GenerationID returns the owning generation.
func (n Node) GenerationID() int64 { return n.generationID }

// ParentID returns the parent node ID, nil for root-level codes.
func (n Node) ParentID() *int64 { return copyInt64Ptr(n.parentID) }

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool { return n.parentID == nil }

// Name returns the code name.
func (n Node) Name() string { return n.name }

// Description returns the code description.
func (n Node) Description() string { return n.description }

// Confidence returns the labeler confidence.
func (n Node) Confidence() Confidence { return n.confidence }

// Frequency returns the frequency estimate.
func (n Node) Frequency() Frequency { return n.frequency }

// ExampleTexts returns a copy of the example answers.
func (n Node) ExampleTexts() []string { return copyStrings(n.exampleTexts) }

// ClusterID returns the originating cluster, nil for manual nodes.
func (n Node) ClusterID() *int { return copyIntPtr(n.clusterID) }

// ParentClusterID returns the enclosing cluster for sub-cluster nodes.
func (n Node) ParentClusterID() *int { return copyIntPtr(n.parentClusterID) }

// DisplayOrder returns the position among siblings.
func (n Node) DisplayOrder() int { return n.displayOrder }

// IsAutoGenerated reports whether the node came from the label stage.
func (n Node) IsAutoGenerated() bool { return n.isAutoGenerated }

// IsEdited reports whether a human has changed the node.
func (n Node) IsEdited() bool { return n.isEdited }

// EditHistory returns a copy of the edit history.
func (n Node) EditHistory() []EditEntry { return append([]EditEntry(nil), n.editHistory...) }

// Version returns the optimistic-lock version.
func (n Node) Version() int64 { return n.version }

// CreatedAt returns the creation time.
func (n Node) CreatedAt() time.Time { return n.createdAt }

// UpdatedAt returns the last modification time.
func (n Node) UpdatedAt() time.Time { return n.updatedAt }

// WithParent returns a copy with a new parent and display order.
func (n Node) WithParent(parentID *int64, displayOrder int) Node {
	n.parentID = copyInt64Ptr(parentID)
	n.displayOrder = displayOrder
	return n
}

// WithDisplayOrder returns a copy with a new display order.
func (n Node) WithDisplayOrder(order int) Node {
	n.displayOrder = order
	return n
}

// WithLabel returns a copy carrying a fresh label, used when an
// auto-generated node is overwritten by a re-run of its cluster job.
func (n Node) WithLabel(name, description string, confidence Confidence, frequency Frequency, exampleTexts []string) Node {
	n.name = name
	n.description = description
	n.confidence = confidence
	n.frequency = frequency
	n.exampleTexts = copyStrings(exampleTexts)
	return n
}

// Edited returns a copy marked as edited with a history entry appended.
func (n Node) Edited(actor, change string, at time.Time) Node {
	n.isEdited = true
	n.editHistory = append(append([]EditEntry(nil), n.editHistory...), EditEntry{
		Timestamp: at.UTC(),
		Actor:     actor,
		Change:    change,
	})
	return n
}

// Apply returns a copy with the patch applied and recorded in the history.
func (n Node) Apply(p Patch, actor string, at time.Time) Node {
	if p.Name != nil {
		n.name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		n.description = *p.Description
	}
	if p.Confidence != nil {
		n.confidence = *p.Confidence
	}
	if p.Frequency != nil {
		n.frequency = *p.Frequency
	}
	if p.ExampleTexts != nil {
		n.exampleTexts = copyStrings(*p.ExampleTexts)
	}
	return n.Edited(actor, p.Describe(), at)
}

// Patch is a partial update of a node's descriptive fields.
type Patch struct {
	Name         *string
	Description  *string
	Confidence   *Confidence
	Frequency    *Frequency
	ExampleTexts *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Confidence == nil &&
		p.Frequency == nil && p.ExampleTexts == nil
}

// Validate checks the patch.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: empty patch", domain.ErrValidation)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if p.Confidence != nil {
		if _, err := ParseConfidence(string(*p.Confidence)); err != nil {
			return err
		}
	}
	if p.Frequency != nil {
		if _, err := ParseFrequency(string(*p.Frequency)); err != nil {
			return err
		}
	}
	return nil
}

// Describe renders the patch for the edit history.
func (p Patch) Describe() string {
	var parts []string
	if p.Name != nil {
		parts = append(parts, fmt.Sprintf("renamed to %q", strings.TrimSpace(*p.Name)))
	}
	if p.Description != nil {
		parts = append(parts, "description updated")
	}
	if p.Confidence != nil {
		parts = append(parts, fmt.Sprintf("confidence set to %s", *p.Confidence))
	}
	if p.Frequency != nil {
		parts = append(parts, fmt.Sprintf("frequency set to %s", *p.Frequency))
	}
	if p.ExampleTexts != nil {
		parts = append(parts, fmt.Sprintf("%d examples set", len(*p.ExampleTexts)))
	}
	return strings.Join(parts, "; ")
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
