package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormManager struct {
	DB  *gorm.DB
	log zerolog.Logger
}

// NewSqliteGormManager : run history in a sqlite file, tables migrated on open
func NewSqliteGormManager(path string, log zerolog.Logger) (*GormManager, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open state db %s : %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// batches finish concurrently, sqlite takes one writer at a time
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RunLog{}, &BatchRunLog{}); err != nil {
		return nil, fmt.Errorf("could not migrate state db : %w", err)
	}
	return &GormManager{DB: db, log: log}, nil
}

func (m *GormManager) StartRun(jobID string, sourceTable string, destTable string) (int, error) {
	runLog := RunLog{
		JobID:       jobID,
		SourceTable: sourceTable,
		DestTable:   destTable,
		Status:      Started,
		Base:        Base{CreatedAt: currentTime(), UpdatedAt: currentTime()},
	}
	if err := m.DB.Create(&runLog).Error; err != nil {
		return 0, err
	}
	return runLog.RunID, nil
}

func (m *GormManager) FinishRun(runID int, rowsProcessed int64, err error) error {
	status := statusOf(err)
	return m.DB.Transaction(func(tx *gorm.DB) error {
		errTx := tx.Model(&RunLog{}).Where("run_id = ?", runID).Updates(map[string]any{
			"status":         status,
			"err_msg":        errMsg(err),
			"rows_processed": rowsProcessed,
			"updated_at":     currentTime(),
		}).Error
		if errTx != nil {
			return errTx
		}
		if status == Success {
			return nil
		}
		return tx.Model(&BatchRunLog{}).
			Where("parent_run_id = ? AND status = ?", runID, Started).
			Updates(map[string]any{"status": Aborted, "updated_at": currentTime()}).Error
	})
}

func (m *GormManager) StartBatch(runID int, batchNumber int64, offset int64) error {
	return m.DB.Create(&BatchRunLog{
		ParentRunID: runID,
		BatchNumber: batchNumber,
		Offset:      offset,
		Status:      Started,
		Base:        Base{CreatedAt: currentTime(), UpdatedAt: currentTime()},
	}).Error
}

func (m *GormManager) FinishBatch(runID int, batchNumber int64, rows int64, err error) error {
	return m.DB.Model(&BatchRunLog{}).
		Where("parent_run_id = ? AND batch_number = ?", runID, batchNumber).
		Updates(map[string]any{
			"status":     statusOf(err),
			"err_msg":    errMsg(err),
			"rows":       rows,
			"updated_at": currentTime(),
		}).Error
}

func (m *GormManager) AbortStarted() error {
	run, err := m.LastRun()
	if err != nil || run == nil || run.Status != Started {
		return err
	}
	m.log.Warn().Int("run_id", run.RunID).Str("job_id", run.JobID).
		Msgf("last run had status %s, moving it to %s", Started, Aborted)
	return m.DB.Transaction(func(tx *gorm.DB) error {
		errTx := tx.Model(&RunLog{}).Where("run_id = ? AND status = ?", run.RunID, Started).
			Updates(map[string]any{"status": Aborted, "updated_at": currentTime()}).Error
		if errTx != nil {
			return errTx
		}
		return tx.Model(&BatchRunLog{}).Where("parent_run_id = ? AND status = ?", run.RunID, Started).
			Updates(map[string]any{"status": Aborted, "updated_at": currentTime()}).Error
	})
}

func (m *GormManager) LastRun() (*RunLog, error) {
	var lastRun RunLog
	err := m.DB.Order("run_id desc").First(&lastRun).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lastRun, nil
}

func (m *GormManager) BatchLogs(runID int) ([]*BatchRunLog, error) {
	var logs []*BatchRunLog
	err := m.DB.Where("parent_run_id = ?", runID).Order("batch_number asc").Find(&logs).Error
	return logs, err
}

func statusOf(err error) RunLogState {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled):
		return Aborted
	}
	return Failed
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func currentTime() *time.Time {
	now := time.Now()
	return &now
}
