package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/hierarchy"
)

// NodeResponse represents a codeframe node in API responses.
type NodeResponse struct {
	ID              int64                 `json:"id"`
	GenerationID    int64                 `json:"generation_id"`
	ParentID        *int64                `json:"parent_id"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	Confidence      string                `json:"confidence"`
	Frequency       string                `json:"frequency"`
	ExampleTexts    []string              `json:"example_texts"`
	ClusterID       *int                  `json:"cluster_id,omitempty"`
	ParentClusterID *int                  `json:"parent_cluster_id,omitempty"`
	DisplayOrder    int                   `json:"display_order"`
	IsAutoGenerated bool                  `json:"is_auto_generated"`
	IsEdited        bool                  `json:"is_edited"`
	EditHistory     []hierarchy.EditEntry `json:"edit_history,omitempty"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TreeNodeResponse is a node with its children.
type TreeNodeResponse struct {
	NodeResponse
	Children []TreeNodeResponse `json:"children"`
}

// TreeResponse is the nested hierarchy of a generation.
type TreeResponse struct {
	Data []TreeNodeResponse `json:"data"`
}

// FlatResponse is the hierarchy as a tree-ordered list.
type FlatResponse struct {
	Data []NodeResponse `json:"data"`
}

// NewNodeResponse converts a domain node.
func NewNodeResponse(n hierarchy.Node) NodeResponse {
	examples := n.ExampleTexts()
	if examples == nil {
		examples = []string{}
	}
	return NodeResponse{
		ID:              n.ID(),
		GenerationID:    n.GenerationID(),
		ParentID:        n.ParentID(),
		Name:            n.Name(),
		Description:     n.Description(),
		Confidence:      string(n.Confidence()),
		Frequency:       string(n.Frequency()),
		ExampleTexts:    examples,
		ClusterID:       n.ClusterID(),
		ParentClusterID: n.ParentClusterID(),
		DisplayOrder:    n.DisplayOrder(),
		IsAutoGenerated: n.IsAutoGenerated(),
		IsEdited:        n.IsEdited(),
		EditHistory:     n.EditHistory(),
		Version:         n.Version(),
		CreatedAt:       n.CreatedAt(),
		UpdatedAt:       n.UpdatedAt(),
	}
}

// NewTreeResponse converts a domain tree.
func NewTreeResponse(tree []hierarchy.TreeNode) TreeResponse {
	return TreeResponse{Data: treeNodes(tree)}
}

func treeNodes(tree []hierarchy.TreeNode) []TreeNodeResponse {
	out := make([]TreeNodeResponse, len(tree))
	for i, t := range tree {
		out[i] = TreeNodeResponse{
			NodeResponse: NewNodeResponse(t.Node),
			Children:     treeNodes(t.Children),
		}
	}
	return out
}

// NewFlatResponse converts a tree-ordered node list.
func NewFlatResponse(nodes []hierarchy.Node) FlatResponse {
	data := make([]NodeResponse, len(nodes))
	for i, n := range nodes {
		data[i] = NewNodeResponse(n)
	}
	return FlatResponse{Data: data}
}

// ActionRequest is one hierarchy edit. Which fields apply depends on Type.
type ActionRequest struct {
	Type            string  `json:"type"`
	Actor           string  `json:"actor,omitempty"`
	NodeID          int64   `json:"node_id,omitempty"`
	ExpectedVersion int64   `json:"expected_version,omitempty"`
	ParentID        *int64  `json:"parent_id,omitempty"`
	NewParentID     *int64  `json:"new_parent_id,omitempty"`
	NewOrder        int     `json:"new_order,omitempty"`
	SourceIDs       []int64 `json:"source_ids,omitempty"`
	// SourceVersions maps each merge source to its expected version.
	SourceVersions map[int64]int64 `json:"source_versions,omitempty"`
	// Position places an added node among its siblings; omitted appends.
	Position *int `json:"position,omitempty"`
	// ReparentChildren defaults to true for deletes.
	ReparentChildren *bool `json:"reparent_children,omitempty"`

	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Confidence   *string   `json:"confidence,omitempty"`
	Frequency    *string   `json:"frequency,omitempty"`
	ExampleTexts *[]string `json:"example_texts,omitempty"`
}

// Action converts the request into a domain action.
func (r ActionRequest) Action() (hierarchy.Action, error) {
	switch hierarchy.ActionKind(strings.ToLower(strings.TrimSpace(r.Type))) {
	case hierarchy.ActionUpdate:
		patch, err := r.patch()
		if err != nil {
			return nil, err
		}
		return hierarchy.UpdateAction{NodeID: r.NodeID, ExpectedVersion: r.ExpectedVersion, Patch: patch}, nil
	case hierarchy.ActionDelete:
		reparent := true
		if r.ReparentChildren != nil {
			reparent = *r.ReparentChildren
		}
		return hierarchy.DeleteAction{NodeID: r.NodeID, ExpectedVersion: r.ExpectedVersion, ReparentChildren: reparent}, nil
	case hierarchy.ActionAdd:
		add := hierarchy.AddAction{
			ParentID:   r.ParentID,
			Confidence: hierarchy.ConfidenceMedium,
			Frequency:  hierarchy.FrequencyOccasional,
			Position:   r.Position,
		}
		if r.Name != nil {
			add.Name = *r.Name
		}
		if r.Description != nil {
			add.Description = *r.Description
		}
		if r.ExampleTexts != nil {
			add.ExampleTexts = *r.ExampleTexts
		}
		if r.Confidence != nil {
			c, err := hierarchy.ParseConfidence(*r.Confidence)
			if err != nil {
				return nil, err
			}
			add.Confidence = c
		}
		if r.Frequency != nil {
			f, err := hierarchy.ParseFrequency(*r.Frequency)
			if err != nil {
				return nil, err
			}
			add.Frequency = f
		}
		return add, nil
	case hierarchy.ActionMove:
		return hierarchy.MoveAction{
			NodeID:          r.NodeID,
			ExpectedVersion: r.ExpectedVersion,
			NewParentID:     r.NewParentID,
			NewOrder:        r.NewOrder,
		}, nil
	case hierarchy.ActionMerge:
		return hierarchy.MergeAction{
			TargetID:        r.NodeID,
			ExpectedVersion: r.ExpectedVersion,
			SourceIDs:       r.SourceIDs,
			SourceVersions:  r.SourceVersions,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown action type %q", domain.ErrValidation, r.Type)
}

func (r ActionRequest) patch() (hierarchy.Patch, error) {
	p := hierarchy.Patch{
		Name:         r.Name,
		Description:  r.Description,
		ExampleTexts: r.ExampleTexts,
	}
	if r.Confidence != nil {
		c, err := hierarchy.ParseConfidence(*r.Confidence)
		if err != nil {
			return hierarchy.Patch{}, err
		}
		p.Confidence = &c
	}
	if r.Frequency != nil {
		f, err := hierarchy.ParseFrequency(*r.Frequency)
		if err != nil {
			return hierarchy.Patch{}, err
		}
		p.Frequency = &f
	}
	return p, nil
}

// ActionResponse describes the outcome of a hierarchy edit.
type ActionResponse struct {
	Type        string        `json:"type"`
	Node        *NodeResponse `json:"node,omitempty"`
	AffectedIDs []int64       `json:"affected_ids,omitempty"`
	RemovedIDs  []int64       `json:"removed_ids,omitempty"`
}

// NewActionResponse converts a domain action result.
func NewActionResponse(r hierarchy.Result) ActionResponse {
	resp := ActionResponse{
		Type:        string(r.Kind),
		AffectedIDs: r.AffectedIDs,
		RemovedIDs:  r.RemovedIDs,
	}
	if r.Node != nil {
		n := NewNodeResponse(*r.Node)
		resp.Node = &n
	}
	return resp
}
