package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/crewflow/types"
)

// workflowRecord is the persisted row shape. Artifacts and failure
// detail serialize to JSON; the orchestrator treats both as opaque.
type workflowRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	Requirements  string
	Stage         string `gorm:"size:32;index"`
	CorrelationID string `gorm:"size:64;uniqueIndex"`
	Artifacts     string
	Failure       string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (workflowRecord) TableName() string { return "workflows" }

func toRecord(w *types.Workflow) (*workflowRecord, error) {
	artifacts, err := json.Marshal(w.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	failure := ""
	if w.Failure != nil {
		data, err := json.Marshal(w.Failure)
		if err != nil {
			return nil, fmt.Errorf("marshal failure: %w", err)
		}
		failure = string(data)
	}
	return &workflowRecord{
		ID:            w.ID,
		Requirements:  w.Requirements,
		Stage:         string(w.Stage),
		CorrelationID: w.CorrelationID,
		Artifacts:     string(artifacts),
		Failure:       failure,
		Version:       w.Version,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}, nil
}

func (r *workflowRecord) toWorkflow() (*types.Workflow, error) {
	w := &types.Workflow{
		ID:            r.ID,
		Requirements:  r.Requirements,
		Stage:         types.Stage(r.Stage),
		CorrelationID: r.CorrelationID,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Artifacts != "" {
		if err := json.Unmarshal([]byte(r.Artifacts), &w.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	if w.Artifacts == nil {
		w.Artifacts = map[types.Stage]types.Artifact{}
	}
	if r.Failure != "" {
		w.Failure = &types.Failure{}
		if err := json.Unmarshal([]byte(r.Failure), w.Failure); err != nil {
			return nil, fmt.Errorf("unmarshal failure: %w", err)
		}
	}
	return w, nil
}

// GormStore is the durable Store backed by sqlite through gorm.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the sqlite database at dsn and runs the
// schema migration.
func OpenSQLite(dsn string, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite has a single writer; one pooled connection also keeps
	// ":memory:" databases coherent.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormStore(db, logger)
}

// NewGormStore wraps an existing gorm connection and migrates the
// workflows table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&workflowRecord{}); err != nil {
		return nil, fmt.Errorf("migrate workflows table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "workflow_store")),
	}, nil
}

// Save implements Store.
func (s *GormStore) Save(ctx context.Context, w *types.Workflow) error {
	record, err := toRecord(w)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.NewInvalidInputError("workflow already exists: " + w.ID)
		}
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id string) (*types.Workflow, error) {
	var record workflowRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("workflow", id)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return record.toWorkflow()
}

// Update implements Store. The version predicate in the WHERE clause is
// the compare-and-swap: zero rows affected with an existing id means a
// concurrent writer won.
func (s *GormStore) Update(ctx context.Context, w *types.Workflow) error {
	record, err := toRecord(w)
	if err != nil {
		return err
	}
	record.Version = w.Version + 1

	res := s.db.WithContext(ctx).
		Model(&workflowRecord{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]any{
			"stage":      record.Stage,
			"artifacts":  record.Artifacts,
			"failure":    record.Failure,
			"version":    record.Version,
			"updated_at": record.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update workflow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&workflowRecord{}).
			Where("id = ?", w.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		if count == 0 {
			return types.NewNotFoundError("workflow", w.ID)
		}
		return types.NewError(types.ErrCodeWorkflowBusy,
			"concurrent update detected for workflow "+w.ID)
	}
	w.Version = record.Version
	return nil
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&workflowRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete workflow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("workflow", id)
	}
	return nil
}

// List implements Store.
func (s *GormStore) List(ctx context.Context) ([]*types.Workflow, error) {
	var records []workflowRecord
	if err := s.db.WithContext(ctx).Order("created_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	out := make([]*types.Workflow, 0, len(records))
	for i := range records {
		w, err := records[i].toWorkflow()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
