// Package persistence provides database storage implementations.
package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/internal/database"
	"gorm.io/gorm"
)

// activeGenerationIndex enforces at most one non-terminal generation per category.
const activeGenerationIndex = "idx_generations_active_category"

// AutoMigrate runs GORM auto migration for all models.
func AutoMigrate(db database.Database) error {
	if err := db.GORM().AutoMigrate(allModels()...); err != nil {
		return err
	}
	return postMigrate(db)
}

// postMigrate creates indexes GORM struct tags cannot express.
// Both SQLite and PostgreSQL support partial indexes with the same syntax.
func postMigrate(db database.Database) error {
	gdb := db.GORM()

	quoted := make([]string, 0, len(generation.ActiveStatuses()))
	for _, s := range generation.ActiveStatuses() {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON generations (category_id) WHERE status IN (%s)`,
		activeGenerationIndex, strings.Join(quoted, ", "),
	)
	if err := gdb.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create index %s: %w", activeGenerationIndex, err)
	}
	return nil
}

// allModels returns every GORM model that AutoMigrate manages.
func allModels() []interface{} {
	return []interface{}{
		&AnswerModel{},
		&EmbeddingCacheModel{},
		&GenerationModel{},
		&HierarchyNodeModel{},
		&HierarchyTombstoneModel{},
		&AssignmentModel{},
		&JobModel{},
	}
}

// ValidateSchema verifies every GORM model field has a corresponding column
// in the database. Returns an error listing any missing columns.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// isUniqueViolation reports whether err came from a unique index.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
