package repository

import (
	"context"
	"database/sql"
	"fmt"

	"blackbox-ingest/internal/models"

	"go.uber.org/zap"
)

// EmergencyContactsRepository 紧急联系人仓库（接入服务只读，不做任何变更）
type EmergencyContactsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyContactsRepository 创建紧急联系人仓库
func NewEmergencyContactsRepository(db *sql.DB, logger *zap.Logger) *EmergencyContactsRepository {
	return &EmergencyContactsRepository{
		db:     db,
		logger: logger,
	}
}

// GetEmergencyContacts 获取用户的紧急联系人列表（主联系人在前，同级按优先级排序）
func (r *EmergencyContactsRepository) GetEmergencyContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			contact_id,
			user_id,
			name,
			phone,
			relation,
			is_primary,
			priority
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY is_primary DESC, priority ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.EmergencyContact{}
	for rows.Next() {
		var c models.EmergencyContact
		if err := rows.Scan(
			&c.ContactID,
			&c.UserID,
			&c.Name,
			&c.Phone,
			&c.Relation,
			&c.IsPrimary,
			&c.Priority,
		); err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency contacts: %w", err)
	}

	return contacts, nil
}
