package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"blackbox-ingest/internal/models"

	"go.uber.org/zap"
)

// PanicEventsRepository 紧急求助事件仓库
type PanicEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPanicEventsRepository 创建紧急求助事件仓库
func NewPanicEventsRepository(db *sql.DB, logger *zap.Logger) *PanicEventsRepository {
	return &PanicEventsRepository{
		db:     db,
		logger: logger,
	}
}

// PanicEventFilters 紧急求助事件过滤条件（合取过滤）
type PanicEventFilters struct {
	DeviceID      *string    // 设备ID
	UserID        *string    // 归属用户ID
	TriggerSource *string    // 触发来源（manual/auto）
	StartTime     *time.Time // 开始时间（occurred_at >= StartTime）
	EndTime       *time.Time // 结束时间（occurred_at <= EndTime）
	Resolved      *bool      // 是否已处置（resolved_at 非空）
}

const panicEventColumns = `
	event_id,
	device_id,
	user_id,
	occurred_at,
	latitude,
	longitude,
	altitude,
	speed,
	heading,
	trigger_source,
	notifications_sent,
	notification_attempts,
	false_alarm,
	resolved_at,
	rider_status,
	notes,
	created_at,
	updated_at`

// CreatePanicEventTx 在给定事务内创建紧急求助事件记录
// 调用方负责在同一事务内更新设备的最后在线时间
func (r *PanicEventsRepository) CreatePanicEventTx(ctx context.Context, tx *sql.Tx, event *models.PanicEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO panic_events (
			event_id,
			device_id,
			user_id,
			occurred_at,
			latitude,
			longitude,
			altitude,
			speed,
			heading,
			trigger_source,
			notifications_sent,
			notification_attempts,
			false_alarm,
			resolved_at,
			rider_status,
			notes,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	var altitude interface{}
	if event.Position.Altitude != nil {
		altitude = *event.Position.Altitude
	}

	_, err := tx.ExecContext(ctx, query,
		event.EventID,
		event.DeviceID,
		event.UserID,
		event.OccurredAt,
		event.Position.Latitude,
		event.Position.Longitude,
		altitude,
		event.Speed,
		event.Heading,
		event.TriggerSource,
		event.NotificationsSent,
		event.NotificationAttempts,
		event.FalseAlarm,
		event.ResolvedAt,
		event.RiderStatus,
		event.Notes,
		event.CreatedAt,
		event.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create panic event: %w", err)
	}

	return nil
}

// scanPanicEvent 扫描单行紧急求助事件
func scanPanicEvent(scan func(dest ...interface{}) error) (*models.PanicEvent, error) {
	var event models.PanicEvent
	var altitude sql.NullFloat64
	var resolvedAt sql.NullTime
	var riderStatus, notes sql.NullString

	err := scan(
		&event.EventID,
		&event.DeviceID,
		&event.UserID,
		&event.OccurredAt,
		&event.Position.Latitude,
		&event.Position.Longitude,
		&altitude,
		&event.Speed,
		&event.Heading,
		&event.TriggerSource,
		&event.NotificationsSent,
		&event.NotificationAttempts,
		&event.FalseAlarm,
		&resolvedAt,
		&riderStatus,
		&notes,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if altitude.Valid {
		event.Position.Altitude = &altitude.Float64
	}
	if resolvedAt.Valid {
		event.ResolvedAt = &resolvedAt.Time
	}
	if riderStatus.Valid {
		event.RiderStatus = &riderStatus.String
	}
	if notes.Valid {
		event.Notes = &notes.String
	}

	return &event, nil
}

// GetPanicEvent 根据 event_id 获取单个紧急求助事件
func (r *PanicEventsRepository) GetPanicEvent(ctx context.Context, eventID string) (*models.PanicEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM panic_events
		WHERE event_id = $1
	`, panicEventColumns)

	row := r.db.QueryRowContext(ctx, query, eventID)
	event, err := scanPanicEvent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("panic event not found: event_id=%s", eventID)
		}
		return nil, fmt.Errorf("failed to get panic event: %w", err)
	}

	return event, nil
}

// ListPanicEvents 列表查询（合取过滤 + offset/limit 分页，按事件时间倒序）
// limit 超过100会被截断到100
func (r *PanicEventsRepository) ListPanicEvents(ctx context.Context, filters PanicEventFilters, limit, offset int) ([]*models.PanicEvent, int, error) {
	args := []interface{}{}
	argN := 1
	where := []string{}

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, *filters.DeviceID)
		argN++
	}
	if filters.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argN))
		args = append(args, *filters.UserID)
		argN++
	}
	if filters.TriggerSource != nil {
		where = append(where, fmt.Sprintf("trigger_source = $%d", argN))
		args = append(args, *filters.TriggerSource)
		argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", argN))
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", argN))
		args = append(args, *filters.EndTime)
		argN++
	}
	if filters.Resolved != nil {
		if *filters.Resolved {
			where = append(where, "resolved_at IS NOT NULL")
		} else {
			where = append(where, "resolved_at IS NULL")
		}
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM panic_events
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count panic events: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM panic_events
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d
	`, panicEventColumns, whereClause, argN, argN+1)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query panic events: %w", err)
	}
	defer rows.Close()

	events := []*models.PanicEvent{}
	for rows.Next() {
		event, err := scanPanicEvent(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan panic event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate panic events: %w", err)
	}

	return events, total, nil
}

// MarkNotificationsSent 记录通知发送结果（由外部通知发送方回写）
func (r *PanicEventsRepository) MarkNotificationsSent(ctx context.Context, eventID string, attempts int) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE panic_events
		SET notifications_sent = TRUE,
		    notification_attempts = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, eventID, attempts)
	if err != nil {
		return fmt.Errorf("failed to mark notifications sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("panic event not found: event_id=%s", eventID)
	}

	return nil
}

// ResolvePanicEvent 处置紧急求助事件（外部复核动作调用，接入管道不使用）
func (r *PanicEventsRepository) ResolvePanicEvent(ctx context.Context, eventID string, falseAlarm bool, riderStatus, notes *string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE panic_events
		SET false_alarm = $2,
		    resolved_at = $3,
		    rider_status = $4,
		    notes = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, eventID, falseAlarm, time.Now(), riderStatus, notes)
	if err != nil {
		return fmt.Errorf("failed to resolve panic event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("panic event not found: event_id=%s", eventID)
	}

	return nil
}
