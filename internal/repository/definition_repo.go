package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
	"go.uber.org/zap"
)

// DefinitionRepository handles workflow definition database operations
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// Create inserts a definition together with its nodes.
func (r *DefinitionRepository) Create(tx *sql.Tx, def *models.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (tenant_id, code, name, status)
		VALUES (?, ?, ?, ?)
	`

	result, err := exec(tx, r.db, query, def.TenantID, def.Code, def.Name, def.Status)
	if err != nil {
		r.logger.Error("Failed to create workflow definition", zap.String("code", def.Code), zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = id

	for _, node := range def.Nodes {
		node.WorkflowID = id
		if err := r.createNode(tx, node); err != nil {
			return err
		}
	}

	return nil
}

func (r *DefinitionRepository) createNode(tx *sql.Tx, node *models.WorkflowNode) error {
	approvers, err := json.Marshal(node.ApproverIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal approver ids: %w", err)
	}

	query := `
		INSERT INTO workflow_nodes (
			workflow_id, name, node_type, approver_mode, approver_ids,
			approval_mode, condition_expression, sort_order
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := exec(tx, r.db, query,
		node.WorkflowID,
		node.Name,
		node.Type,
		node.ApproverMode,
		string(approvers),
		node.ApprovalMode,
		node.ConditionExpression,
		node.SortOrder,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow node", zap.Int64("workflow_id", node.WorkflowID), zap.Error(err))
		return fmt.Errorf("failed to create workflow node: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	node.ID = id
	return nil
}

const definitionColumns = `id, tenant_id, code, name, status, deleted, created_at, updated_at`

func (r *DefinitionRepository) scanDefinition(row *sql.Row) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	err := row.Scan(
		&def.ID,
		&def.TenantID,
		&def.Code,
		&def.Name,
		&def.Status,
		&def.Deleted,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}
	return &def, nil
}

// GetByCode retrieves a definition by its unique code. Returns nil when absent
// or soft-deleted.
func (r *DefinitionRepository) GetByCode(tx *sql.Tx, code string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE code = ? AND deleted = 0`
	return r.scanDefinition(queryRow(tx, r.db, query, code))
}

// GetByID retrieves a definition by ID
func (r *DefinitionRepository) GetByID(tx *sql.Tx, id int64) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ? AND deleted = 0`
	return r.scanDefinition(queryRow(tx, r.db, query, id))
}

// GetNodes returns the definition's nodes ordered by sort position.
func (r *DefinitionRepository) GetNodes(tx *sql.Tx, workflowID int64) ([]*models.WorkflowNode, error) {
	query := `
		SELECT id, workflow_id, name, node_type, approver_mode, approver_ids,
			approval_mode, condition_expression, sort_order
		FROM workflow_nodes
		WHERE workflow_id = ?
		ORDER BY sort_order ASC
	`

	rows, err := queryRows(tx, r.db, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to get workflow nodes", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.WorkflowNode
	for rows.Next() {
		var node models.WorkflowNode
		var approvers string
		err := rows.Scan(
			&node.ID,
			&node.WorkflowID,
			&node.Name,
			&node.Type,
			&node.ApproverMode,
			&approvers,
			&node.ApprovalMode,
			&node.ConditionExpression,
			&node.SortOrder,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow node: %w", err)
		}
		if err := json.Unmarshal([]byte(approvers), &node.ApproverIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approver ids: %w", err)
		}
		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

// GetNode retrieves a single node by ID
func (r *DefinitionRepository) GetNode(tx *sql.Tx, nodeID int64) (*models.WorkflowNode, error) {
	query := `
		SELECT id, workflow_id, name, node_type, approver_mode, approver_ids,
			approval_mode, condition_expression, sort_order
		FROM workflow_nodes
		WHERE id = ?
	`

	var node models.WorkflowNode
	var approvers string
	err := queryRow(tx, r.db, query, nodeID).Scan(
		&node.ID,
		&node.WorkflowID,
		&node.Name,
		&node.Type,
		&node.ApproverMode,
		&approvers,
		&node.ApprovalMode,
		&node.ConditionExpression,
		&node.SortOrder,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow node", zap.Int64("node_id", nodeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow node: %w", err)
	}
	if err := json.Unmarshal([]byte(approvers), &node.ApproverIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approver ids: %w", err)
	}

	return &node, nil
}

// UpdateStatus moves a definition between DRAFT / ACTIVE / INACTIVE.
func (r *DefinitionRepository) UpdateStatus(tx *sql.Tx, id int64, status string) error {
	query := `UPDATE workflow_definitions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted = 0`

	if _, err := exec(tx, r.db, query, status, id); err != nil {
		r.logger.Error("Failed to update definition status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update definition status: %w", err)
	}
	return nil
}

// Delete soft-deletes a definition. Node rows stay in place so running
// instances keep resolving their current node.
func (r *DefinitionRepository) Delete(tx *sql.Tx, id int64) error {
	query := `UPDATE workflow_definitions SET deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	if _, err := exec(tx, r.db, query, id); err != nil {
		r.logger.Error("Failed to delete definition", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	return nil
}

// List retrieves definitions with pagination
func (r *DefinitionRepository) List(limit, offset int) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE deleted = 0
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		var def models.WorkflowDefinition
		err := rows.Scan(
			&def.ID,
			&def.TenantID,
			&def.Code,
			&def.Name,
			&def.Status,
			&def.Deleted,
			&def.CreatedAt,
			&def.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, &def)
	}

	return defs, rows.Err()
}
