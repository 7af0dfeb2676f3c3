package persistence

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerModel represents a survey answer in the database.
type AnswerModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID int64     `gorm:"column:category_id;index;not null"`
	Text       string    `gorm:"column:text;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name.
func (AnswerModel) TableName() string {
	return "answers"
}

// EmbeddingCacheModel represents a cached embedding vector.
type EmbeddingCacheModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TextHash  string         `gorm:"column:text_hash;type:varchar(64);not null;uniqueIndex:idx_embedding_cache_key,priority:1"`
	ModelID   string         `gorm:"column:model_id;type:varchar(255);not null;uniqueIndex:idx_embedding_cache_key,priority:2"`
	Vector    datatypes.JSON `gorm:"column:vector;not null"`
	Dimension int            `gorm:"column:dimension;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name.
func (EmbeddingCacheModel) TableName() string {
	return "embedding_cache"
}

// GenerationModel represents one pipeline run.
type GenerationModel struct {
	ID                 int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID         int64          `gorm:"column:category_id;index;not null"`
	Status             string         `gorm:"column:status;type:varchar(32);index;not null"`
	RequestedAnswerIDs datatypes.JSON `gorm:"column:requested_answer_ids"`
	AlgorithmConfig    datatypes.JSON `gorm:"column:algorithm_config;not null"`
	TargetLanguage     string         `gorm:"column:target_language;type:varchar(64);not null;default:''"`
	CreatedBy          string         `gorm:"column:created_by;type:varchar(255);not null;default:''"`
	ErrorDetail        *string        `gorm:"column:error_detail;type:text"`
	NThemes            int            `gorm:"column:n_themes;not null;default:0"`
	NCodes             int            `gorm:"column:n_codes;not null;default:0"`
	TotalJobs          int            `gorm:"column:total_jobs;not null;default:0"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt        *time.Time     `gorm:"column:completed_at"`
}

// TableName returns the table name.
func (GenerationModel) TableName() string {
	return "generations"
}

// HierarchyNodeModel represents one code of a generation's codeframe.
type HierarchyNodeModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	GenerationID    int64          `gorm:"column:generation_id;not null;index;uniqueIndex:idx_hierarchy_nodes_cluster,priority:1"`
	ParentID        *int64         `gorm:"column:parent_id;index"`
	Name            string         `gorm:"column:name;type:varchar(255);not null"`
	Description     string         `gorm:"column:description;type:text;not null;default:''"`
	Confidence      string         `gorm:"column:confidence;type:varchar(16);not null"`
	Frequency       string         `gorm:"column:frequency_estimate;type:varchar(32);not null"`
	ExampleTexts    datatypes.JSON `gorm:"column:example_texts"`
	ClusterID       *int           `gorm:"column:cluster_id;uniqueIndex:idx_hierarchy_nodes_cluster,priority:2"`
	ParentClusterID *int           `gorm:"column:parent_cluster_id"`
	DisplayOrder    int            `gorm:"column:display_order;not null;default:0"`
	IsAutoGenerated bool           `gorm:"column:is_auto_generated;not null;default:false"`
	IsEdited        bool           `gorm:"column:is_edited;not null;default:false"`
	EditHistory     datatypes.JSON `gorm:"column:edit_history"`
	Version         int64          `gorm:"column:version;not null;default:1"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (HierarchyNodeModel) TableName() string {
	return "hierarchy_nodes"
}

// HierarchyTombstoneModel records a cluster whose node an editor removed.
type HierarchyTombstoneModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	GenerationID int64     `gorm:"column:generation_id;not null;uniqueIndex:idx_hierarchy_tombstones_cluster,priority:1"`
	ClusterID    int       `gorm:"column:cluster_id;not null;uniqueIndex:idx_hierarchy_tombstones_cluster,priority:2"`
	DeletedBy    string    `gorm:"column:deleted_by;type:varchar(255);not null;default:''"`
	DeletedAt    time.Time `gorm:"column:deleted_at;not null"`
}

// TableName returns the table name.
func (HierarchyTombstoneModel) TableName() string {
	return "hierarchy_tombstones"
}

// AssignmentModel links an answer to a hierarchy node.
type AssignmentModel struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	GenerationID    int64     `gorm:"column:generation_id;not null;index"`
	AnswerID        int64     `gorm:"column:answer_id;not null;uniqueIndex"`
	HierarchyNodeID int64     `gorm:"column:hierarchy_node_id;not null;index"`
	Confidence      float64   `gorm:"column:confidence;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

// TableName returns the table name.
func (AssignmentModel) TableName() string {
	return "assignments"
}

// JobModel represents a row of the durable job queue.
type JobModel struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	GenerationID   int64          `gorm:"column:generation_id;not null;index"`
	Kind           string         `gorm:"column:kind;type:varchar(64);not null;index"`
	Payload        datatypes.JSON `gorm:"column:payload;not null"`
	DedupKey       string         `gorm:"column:dedup_key;type:varchar(255);not null;uniqueIndex"`
	State          string         `gorm:"column:state;type:varchar(16);not null;index:idx_jobs_runnable,priority:1"`
	Priority       int            `gorm:"column:priority;not null;default:0"`
	Attempts       int            `gorm:"column:attempts;not null;default:0"`
	MaxAttempts    int            `gorm:"column:max_attempts;not null;default:1"`
	RunAfter       time.Time      `gorm:"column:run_after;not null;index:idx_jobs_runnable,priority:2"`
	LeaseOwner     string         `gorm:"column:lease_owner;type:varchar(64);not null;default:''"`
	LeaseExpiresAt *time.Time     `gorm:"column:lease_expires_at;index"`
	Version        int64          `gorm:"column:version;not null;default:1"`
	LastError      string         `gorm:"column:last_error;type:text;not null;default:''"`
	FinishedAt     *time.Time     `gorm:"column:finished_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (JobModel) TableName() string {
	return "jobs"
}
