package repository

import (
	"database/sql"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"go.uber.org/zap"
)

// TaskRepository handles workflow task database operations
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `id, instance_id, node_id, assignee_id, assignee_name, status, comment,
	sequence, processed_at, transferred_to, transferred_at, transfer_reason, due_date,
	created_at, updated_at`

// Create inserts a new task
func (r *TaskRepository) Create(tx *sql.Tx, task *models.WorkflowTask) error {
	query := `
		INSERT INTO workflow_tasks (
			instance_id, node_id, assignee_id, assignee_name, status, sequence, due_date
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var dueDate interface{}
	if task.DueDate != nil {
		dueDate = *task.DueDate
	}

	result, err := exec(tx, r.db, query,
		task.InstanceID,
		task.NodeID,
		task.AssigneeID,
		task.AssigneeName,
		task.Status,
		task.Sequence,
		dueDate,
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int64("instance_id", task.InstanceID),
			zap.String("assignee_id", task.AssigneeID),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	return nil
}

func scanTask(scan func(dest ...interface{}) error) (*models.WorkflowTask, error) {
	var task models.WorkflowTask
	var processedAt, transferredAt, dueDate sql.NullTime

	err := scan(
		&task.ID,
		&task.InstanceID,
		&task.NodeID,
		&task.AssigneeID,
		&task.AssigneeName,
		&task.Status,
		&task.Comment,
		&task.Sequence,
		&processedAt,
		&task.TransferredTo,
		&transferredAt,
		&task.TransferReason,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		task.ProcessedAt = &processedAt.Time
	}
	if transferredAt.Valid {
		task.TransferredAt = &transferredAt.Time
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}

	return &task, nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(tx *sql.Tx, id int64) (*models.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks WHERE id = ?`

	task, err := scanTask(queryRow(tx, r.db, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) queryTasks(tx *sql.Tx, query string, args ...interface{}) ([]*models.WorkflowTask, error) {
	rows, err := queryRows(tx, r.db, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.WorkflowTask
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// ListByInstanceAndNode returns all tasks of a node within an instance,
// ordered by the approver sequence. The node outcome is evaluated over this
// set inside the deciding transaction.
func (r *TaskRepository) ListByInstanceAndNode(tx *sql.Tx, instanceID, nodeID int64) ([]*models.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks
		WHERE instance_id = ? AND node_id = ?
		ORDER BY sequence ASC, id ASC`
	return r.queryTasks(tx, query, instanceID, nodeID)
}

// ListByInstance returns all tasks of an instance ordered by creation.
func (r *TaskRepository) ListByInstance(tx *sql.Tx, instanceID int64) ([]*models.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks
		WHERE instance_id = ?
		ORDER BY id ASC`
	return r.queryTasks(tx, query, instanceID)
}

// ListByAssignee returns a page of tasks assigned to a user, optionally
// filtered by status, newest first.
func (r *TaskRepository) ListByAssignee(assigneeID, status string, limit, offset int) ([]*models.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks
		WHERE assignee_id = ?`
	args := []interface{}{assigneeID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.queryTasks(nil, query, args...)
}

// CountByAssignee returns the total matching ListByAssignee's filter.
func (r *TaskRepository) CountByAssignee(assigneeID, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM workflow_tasks WHERE assignee_id = ?`
	args := []interface{}{assigneeID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var count int64
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count tasks", zap.String("assignee_id", assigneeID), zap.Error(err))
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// MarkProcessed records a decision on a task. Guarded on non-terminal status:
// zero rows means the task was already decided (or cancelled) by someone else
// and the caller must surface a conflict instead of overwriting.
func (r *TaskRepository) MarkProcessed(tx *sql.Tx, id int64, status, comment string) (int64, error) {
	query := `UPDATE workflow_tasks
		SET status = ?, comment = ?, processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)`

	result, err := exec(tx, r.db, query, status, comment, id,
		models.TaskStatusPending, models.TaskStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to mark task processed", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark task processed: %w", err)
	}
	return result.RowsAffected()
}

// CancelPending cancels every still-actionable task of an instance. Used on
// node rejection, instance cancel, and ANY-mode resolution where the
// remaining siblings become moot.
func (r *TaskRepository) CancelPending(tx *sql.Tx, instanceID int64) error {
	query := `UPDATE workflow_tasks
		SET status = ?, processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE instance_id = ? AND status IN (?, ?)`

	if _, err := exec(tx, r.db, query, models.TaskStatusCancelled, instanceID,
		models.TaskStatusPending, models.TaskStatusInProgress); err != nil {
		r.logger.Error("Failed to cancel pending tasks", zap.Int64("instance_id", instanceID), zap.Error(err))
		return fmt.Errorf("failed to cancel pending tasks: %w", err)
	}
	return nil
}

// Reassign moves a non-terminal task to a new assignee and records the
// transfer metadata. Status is left untouched. Zero rows means the task was
// no longer actionable.
func (r *TaskRepository) Reassign(tx *sql.Tx, id int64, fromID, toID, toName, reason string) (int64, error) {
	query := `UPDATE workflow_tasks
		SET assignee_id = ?, assignee_name = ?,
			transferred_to = ?, transferred_at = CURRENT_TIMESTAMP, transfer_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND assignee_id = ? AND status IN (?, ?)`

	result, err := exec(tx, r.db, query, toID, toName, toID, reason, id, fromID,
		models.TaskStatusPending, models.TaskStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to reassign task", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to reassign task: %w", err)
	}
	return result.RowsAffected()
}
