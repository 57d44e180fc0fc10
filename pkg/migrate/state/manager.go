package state

import "time"

type RunLogState string

const (
	Started RunLogState = "STARTED"
	Success RunLogState = "SUCCESS"
	Aborted RunLogState = "ABORTED"
	Failed  RunLogState = "FAILED"
)

type Base struct {
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// RunLog : one migration job
type RunLog struct {
	RunID         int         `json:"run_id" db:"run_id" gorm:"primaryKey;autoIncrement"`
	JobID         string      `json:"job_id" db:"job_id" gorm:"type:varchar(64);index"`
	SourceTable   string      `json:"source_table" db:"source_table" gorm:"type:varchar(255)"`
	DestTable     string      `json:"dest_table" db:"dest_table" gorm:"type:varchar(255)"`
	Status        RunLogState `json:"status" db:"status" gorm:"type:varchar(50)"`
	ErrMsg        string      `json:"err_msg" db:"err_msg"`
	RowsProcessed int64       `json:"rows_processed" db:"rows_processed"`
	Base
}

// BatchRunLog : one batch of a run
type BatchRunLog struct {
	ID          int         `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	ParentRunID int         `json:"parent_run_id" db:"parent_run_id" gorm:"index"`
	BatchNumber int64       `json:"batch_number" db:"batch_number"`
	Offset      int64       `json:"offset" db:"offset"`
	Rows        int64       `json:"rows" db:"rows"`
	Status      RunLogState `json:"status" db:"status" gorm:"type:varchar(50)"`
	ErrMsg      string      `json:"err_msg" db:"err_msg"`
	Base
}

// Manager : records the progress of migration runs
type Manager interface {
	// StartRun : start a run log, returns its id
	StartRun(jobID string, sourceTable string, destTable string) (runID int, err error)
	// FinishRun : SUCCESS on a nil error, ABORTED on cancellation, FAILED otherwise
	FinishRun(runID int, rowsProcessed int64, err error) error
	StartBatch(runID int, batchNumber int64, offset int64) error
	FinishBatch(runID int, batchNumber int64, rows int64, err error) error
	// AbortStarted : moves a run left STARTED by an interrupted process to ABORTED
	AbortStarted() error
	// LastRun : most recent run, nil when there is none
	LastRun() (*RunLog, error)
	BatchLogs(runID int) ([]*BatchRunLog, error)
}
