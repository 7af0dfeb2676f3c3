package persistence

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/embedding"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"gorm.io/datatypes"
)

// AnswerMapper maps between domain Answer and persistence AnswerModel.
type AnswerMapper struct{}

// ToDomain converts an AnswerModel to a domain Answer.
func (m AnswerMapper) ToDomain(e AnswerModel) answer.Answer {
	return answer.Reconstruct(e.ID, e.CategoryID, e.Text, e.CreatedAt)
}

// ToModel converts a domain Answer to an AnswerModel.
func (m AnswerMapper) ToModel(a answer.Answer) AnswerModel {
	return AnswerModel{
		ID:         a.ID(),
		CategoryID: a.CategoryID(),
		Text:       a.Text(),
		CreatedAt:  a.CreatedAt(),
	}
}

// EmbeddingCacheMapper maps between domain Entry and persistence EmbeddingCacheModel.
type EmbeddingCacheMapper struct{}

// ToDomain converts an EmbeddingCacheModel to a domain Entry.
func (m EmbeddingCacheMapper) ToDomain(e EmbeddingCacheModel) embedding.Entry {
	return embedding.ReconstructEntry(e.TextHash, e.ModelID, decodeJSON[[]float64](e.Vector, "embedding_cache.vector"), e.CreatedAt)
}

// ToModel converts a domain Entry to an EmbeddingCacheModel.
func (m EmbeddingCacheMapper) ToModel(en embedding.Entry) EmbeddingCacheModel {
	return EmbeddingCacheModel{
		TextHash:  en.TextHash(),
		ModelID:   en.ModelID(),
		Vector:    encodeJSON(en.Vector()),
		Dimension: en.Dimension(),
		CreatedAt: en.CreatedAt(),
	}
}

// GenerationMapper maps between domain Generation and persistence GenerationModel.
type GenerationMapper struct{}

// ToDomain converts a GenerationModel to a domain Generation.
func (m GenerationMapper) ToDomain(e GenerationModel) generation.Generation {
	var requested []int64
	if len(e.RequestedAnswerIDs) > 0 {
		requested = decodeJSON[[]int64](e.RequestedAnswerIDs, "generations.requested_answer_ids")
	}
	var detail string
	if e.ErrorDetail != nil {
		detail = *e.ErrorDetail
	}
	return generation.Reconstruct(
		e.ID,
		e.CategoryID,
		generation.Status(e.Status),
		requested,
		decodeJSON[cluster.Config](e.AlgorithmConfig, "generations.algorithm_config"),
		e.TargetLanguage,
		e.CreatedBy,
		detail,
		e.NThemes,
		e.NCodes,
		e.TotalJobs,
		e.CreatedAt,
		e.UpdatedAt,
		e.CompletedAt,
	)
}

// ToModel converts a domain Generation to a GenerationModel.
func (m GenerationMapper) ToModel(g generation.Generation) GenerationModel {
	var requested datatypes.JSON
	if ids := g.RequestedAnswerIDs(); ids != nil {
		requested = encodeJSON(ids)
	}
	var detail *string
	if d := g.ErrorDetail(); d != "" {
		detail = &d
	}
	return GenerationModel{
		ID:                 g.ID(),
		CategoryID:         g.CategoryID(),
		Status:             string(g.Status()),
		RequestedAnswerIDs: requested,
		AlgorithmConfig:    encodeJSON(g.Config()),
		TargetLanguage:     g.TargetLanguage(),
		CreatedBy:          g.CreatedBy(),
		ErrorDetail:        detail,
		NThemes:            g.NThemes(),
		NCodes:             g.NCodes(),
		TotalJobs:          g.TotalJobs(),
		CreatedAt:          g.CreatedAt(),
		UpdatedAt:          g.UpdatedAt(),
		CompletedAt:        g.CompletedAt(),
	}
}

// NodeMapper maps between domain Node and persistence HierarchyNodeModel.
type NodeMapper struct{}

// ToDomain converts a HierarchyNodeModel to a domain Node.
func (m NodeMapper) ToDomain(e HierarchyNodeModel) hierarchy.Node {
	return hierarchy.ReconstructNode(
		e.ID,
		e.GenerationID,
		e.ParentID,
		e.Name,
		e.Description,
		hierarchy.Confidence(e.Confidence),
		hierarchy.Frequency(e.Frequency),
		decodeJSON[[]string](e.ExampleTexts, "hierarchy_nodes.example_texts"),
		e.ClusterID,
		e.ParentClusterID,
		e.DisplayOrder,
		e.IsAutoGenerated,
		e.IsEdited,
		decodeJSON[[]hierarchy.EditEntry](e.EditHistory, "hierarchy_nodes.edit_history"),
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain Node to a HierarchyNodeModel.
func (m NodeMapper) ToModel(n hierarchy.Node) HierarchyNodeModel {
	examples := n.ExampleTexts()
	if examples == nil {
		examples = []string{}
	}
	history := n.EditHistory()
	if history == nil {
		history = []hierarchy.EditEntry{}
	}
	return HierarchyNodeModel{
		ID:              n.ID(),
		GenerationID:    n.GenerationID(),
		ParentID:        n.ParentID(),
		Name:            n.Name(),
		Description:     n.Description(),
		Confidence:      string(n.Confidence()),
		Frequency:       string(n.Frequency()),
		ExampleTexts:    encodeJSON(examples),
		ClusterID:       n.ClusterID(),
		ParentClusterID: n.ParentClusterID(),
		DisplayOrder:    n.DisplayOrder(),
		IsAutoGenerated: n.IsAutoGenerated(),
		IsEdited:        n.IsEdited(),
		EditHistory:     encodeJSON(history),
		Version:         n.Version(),
		CreatedAt:       n.CreatedAt(),
		UpdatedAt:       n.UpdatedAt(),
	}
}

// AssignmentMapper maps between domain Record and persistence AssignmentModel.
type AssignmentMapper struct{}

// ToDomain converts an AssignmentModel to a domain Record.
func (m AssignmentMapper) ToDomain(e AssignmentModel) assignment.Record {
	return assignment.ReconstructRecord(e.ID, e.GenerationID, e.AnswerID, e.HierarchyNodeID, e.Confidence, e.CreatedAt)
}

// ToModel converts a domain Record to an AssignmentModel.
func (m AssignmentMapper) ToModel(r assignment.Record) AssignmentModel {
	createdAt := r.CreatedAt()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return AssignmentModel{
		ID:              r.ID(),
		GenerationID:    r.GenerationID(),
		AnswerID:        r.AnswerID(),
		HierarchyNodeID: r.NodeID(),
		Confidence:      r.Confidence(),
		CreatedAt:       createdAt,
	}
}

// JobMapper maps between domain Job and persistence JobModel.
type JobMapper struct{}

// ToDomain converts a JobModel to a domain Job.
func (m JobMapper) ToDomain(e JobModel) job.Job {
	return job.Reconstruct(
		e.ID,
		e.GenerationID,
		job.Kind(e.Kind),
		e.Payload,
		e.DedupKey,
		job.State(e.State),
		e.Priority,
		e.Attempts,
		e.MaxAttempts,
		e.RunAfter,
		e.LeaseOwner,
		e.LeaseExpiresAt,
		e.Version,
		e.LastError,
		e.FinishedAt,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a domain Job to a JobModel.
func (m JobMapper) ToModel(j job.Job) JobModel {
	return JobModel{
		ID:             j.ID(),
		GenerationID:   j.GenerationID(),
		Kind:           string(j.Kind()),
		Payload:        datatypes.JSON(j.Payload()),
		DedupKey:       j.DedupKey(),
		State:          string(j.State()),
		Priority:       j.Priority(),
		Attempts:       j.Attempts(),
		MaxAttempts:    j.MaxAttempts(),
		RunAfter:       j.RunAfter(),
		LeaseOwner:     j.LeaseOwner(),
		LeaseExpiresAt: j.LeaseExpiresAt(),
		Version:        j.Version(),
		LastError:      j.LastError(),
		FinishedAt:     j.FinishedAt(),
		CreatedAt:      j.CreatedAt(),
		UpdatedAt:      j.UpdatedAt(),
	}
}

func encodeJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to encode json column", slog.Any("error", err))
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

// decodeJSON tolerates empty and corrupt columns by returning the zero value.
func decodeJSON[T any](raw datatypes.JSON, column string) T {
	var v T
	if len(raw) == 0 {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("failed to decode json column", slog.String("column", column), slog.Any("error", err))
	}
	return v
}
