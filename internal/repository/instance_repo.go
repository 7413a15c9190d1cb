package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"go.uber.org/zap"
)

// InstanceRepository handles workflow instance database operations
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `id, instance_no, workflow_id, business_type, business_id, business_title,
	status, current_node_id, initiator_id, initiator_name, approval_mode, approver_ids,
	started_at, completed_at, created_at, updated_at`

// Create inserts a new workflow instance. The partial unique index on
// (business_type, business_id) WHERE status = 'RUNNING' rejects a concurrent
// duplicate start even if the caller's pre-check raced.
func (r *InstanceRepository) Create(tx *sql.Tx, instance *models.WorkflowInstance) error {
	approvers, err := json.Marshal(instance.ApproverIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal approver ids: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (
			instance_no, workflow_id, business_type, business_id, business_title,
			status, current_node_id, initiator_id, initiator_name,
			approval_mode, approver_ids, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var currentNode interface{}
	if instance.CurrentNodeID != 0 {
		currentNode = instance.CurrentNodeID
	}
	var completedAt interface{}
	if instance.CompletedAt != nil {
		completedAt = *instance.CompletedAt
	}

	result, err := exec(tx, r.db, query,
		instance.InstanceNo,
		instance.WorkflowID,
		instance.BusinessType,
		instance.BusinessID,
		instance.BusinessTitle,
		instance.Status,
		currentNode,
		instance.InitiatorID,
		instance.InitiatorName,
		instance.ApprovalMode,
		string(approvers),
		instance.StartedAt,
		completedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance",
			zap.String("business_type", instance.BusinessType),
			zap.String("business_id", instance.BusinessID),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	instance.ID = id
	return nil
}

func scanInstance(scan func(dest ...interface{}) error) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	var currentNode sql.NullInt64
	var completedAt sql.NullTime
	var approvers string

	err := scan(
		&instance.ID,
		&instance.InstanceNo,
		&instance.WorkflowID,
		&instance.BusinessType,
		&instance.BusinessID,
		&instance.BusinessTitle,
		&instance.Status,
		&currentNode,
		&instance.InitiatorID,
		&instance.InitiatorName,
		&instance.ApprovalMode,
		&approvers,
		&instance.StartedAt,
		&completedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentNode.Valid {
		instance.CurrentNodeID = currentNode.Int64
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(approvers), &instance.ApproverIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approver ids: %w", err)
	}

	return &instance, nil
}

func (r *InstanceRepository) getOne(tx *sql.Tx, query string, args ...interface{}) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(queryRow(tx, r.db, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// GetByID retrieves an instance by its row id
func (r *InstanceRepository) GetByID(tx *sql.Tx, id int64) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	return r.getOne(tx, query, id)
}

// GetByInstanceNo retrieves an instance by its external instance number
func (r *InstanceRepository) GetByInstanceNo(tx *sql.Tx, instanceNo string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE instance_no = ?`
	return r.getOne(tx, query, instanceNo)
}

// GetRunningByBusiness returns the RUNNING instance for a business reference,
// or nil when none is active.
func (r *InstanceRepository) GetRunningByBusiness(tx *sql.Tx, businessType, businessID string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE business_type = ? AND business_id = ? AND status = ?`
	return r.getOne(tx, query, businessType, businessID, models.InstanceStatusRunning)
}

// GetLatestByBusiness returns the most recent instance for a business
// reference regardless of status. Business modules use this to look up the
// final outcome after completion.
func (r *InstanceRepository) GetLatestByBusiness(tx *sql.Tx, businessType, businessID string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE business_type = ? AND business_id = ?
		ORDER BY id DESC LIMIT 1`
	return r.getOne(tx, query, businessType, businessID)
}

// AdvanceNode moves the current node pointer. Guarded on RUNNING status so a
// racing terminal transition wins; the caller must treat zero rows as a
// conflict.
func (r *InstanceRepository) AdvanceNode(tx *sql.Tx, id, nodeID int64) (int64, error) {
	query := `UPDATE workflow_instances
		SET current_node_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	result, err := exec(tx, r.db, query, nodeID, id, models.InstanceStatusRunning)
	if err != nil {
		r.logger.Error("Failed to advance instance node", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to advance instance node: %w", err)
	}
	return result.RowsAffected()
}

// Complete transitions a RUNNING instance to a terminal status and stamps the
// completion time. Returns the number of rows updated; zero means the
// instance was not RUNNING anymore.
func (r *InstanceRepository) Complete(tx *sql.Tx, id int64, status string) (int64, error) {
	query := `UPDATE workflow_instances
		SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	result, err := exec(tx, r.db, query, status, id, models.InstanceStatusRunning)
	if err != nil {
		r.logger.Error("Failed to complete instance",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return 0, fmt.Errorf("failed to complete instance: %w", err)
	}
	return result.RowsAffected()
}

// List retrieves instances with pagination
func (r *InstanceRepository) List(limit, offset int) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}
