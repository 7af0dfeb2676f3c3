package job

import "fmt"

// SubCluster carries the sample of one adaptive sub-cluster.
type SubCluster struct {
	ClusterID int      `json:"cluster_id"`
	Examples  []string `json:"examples"`
}

// LabelClusterPayload asks a worker to label one top-level cluster and its
// sub-clusters.
type LabelClusterPayload struct {
	GenerationID   int64        `json:"generation_id"`
	ClusterID      int          `json:"cluster_id"`
	Size           int          `json:"size"`
	Examples       []string     `json:"examples"`
	TargetLanguage string       `json:"target_language"`
	Children       []SubCluster `json:"children,omitempty"`
}

// Kind implements Payload.
func (LabelClusterPayload) Kind() Kind { return KindLabelCluster }

// DedupKey implements Payload.
func (p LabelClusterPayload) DedupKey() string {
	return fmt.Sprintf("%s:%d:%d", KindLabelCluster, p.GenerationID, p.ClusterID)
}

// ApplyAssignmentsPayload runs the assignment stage in the background.
type ApplyAssignmentsPayload struct {
	GenerationID int64   `json:"generation_id"`
	Threshold    float64 `json:"threshold"`
	AnswerIDs    []int64 `json:"answer_ids,omitempty"`
	Actor        string  `json:"actor"`
	// RequestID separates repeated runs for the same generation.
	RequestID string `json:"request_id"`
}

// Kind implements Payload.
func (ApplyAssignmentsPayload) Kind() Kind { return KindApplyAssignments }

// DedupKey implements Payload.
func (p ApplyAssignmentsPayload) DedupKey() string {
	return fmt.Sprintf("%s:%d:%s", KindApplyAssignments, p.GenerationID, p.RequestID)
}
