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

// 分页上限：单页最多100行
const maxPageSize = 100

// CrashEventsRepository 碰撞事件仓库
// 取证字段只在创建时写入；创建必须与设备状态翻转在同一事务内完成
type CrashEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCrashEventsRepository 创建碰撞事件仓库
func NewCrashEventsRepository(db *sql.DB, logger *zap.Logger) *CrashEventsRepository {
	return &CrashEventsRepository{
		db:     db,
		logger: logger,
	}
}

// CrashEventFilters 碰撞事件过滤条件（合取过滤）
type CrashEventFilters struct {
	DeviceID  *string    // 设备ID
	UserID    *string    // 归属用户ID
	Severity  *string    // 严重程度
	StartTime *time.Time // 开始时间（occurred_at >= StartTime）
	EndTime   *time.Time // 结束时间（occurred_at <= EndTime）
	Reviewed  *bool      // 人工复核标记
}

const crashEventColumns = `
	event_id,
	device_id,
	user_id,
	occurred_at,
	latitude,
	longitude,
	altitude,
	impact_force,
	impact_direction,
	tilt_angle,
	pre_avg_speed,
	pre_heading,
	pre_accel_x, pre_accel_y, pre_accel_z,
	pre_gyro_x, pre_gyro_y, pre_gyro_z,
	post_accel_x, post_accel_y, post_accel_z,
	post_gyro_x, post_gyro_y, post_gyro_z,
	post_latitude,
	post_longitude,
	post_altitude,
	severity,
	injury_probability,
	notifications_sent,
	notification_attempts,
	first_responder_contacted,
	reviewed,
	review_notes,
	created_at,
	updated_at`

// CreateCrashEventTx 在给定事务内创建碰撞事件记录
// 调用方负责在同一事务内完成配套的设备状态翻转
func (r *CrashEventsRepository) CreateCrashEventTx(ctx context.Context, tx *sql.Tx, event *models.CrashEvent) error {
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
		INSERT INTO crash_events (
			event_id,
			device_id,
			user_id,
			occurred_at,
			latitude,
			longitude,
			altitude,
			impact_force,
			impact_direction,
			tilt_angle,
			pre_avg_speed,
			pre_heading,
			pre_accel_x, pre_accel_y, pre_accel_z,
			pre_gyro_x, pre_gyro_y, pre_gyro_z,
			post_accel_x, post_accel_y, post_accel_z,
			post_gyro_x, post_gyro_y, post_gyro_z,
			post_latitude,
			post_longitude,
			post_altitude,
			severity,
			injury_probability,
			notifications_sent,
			notification_attempts,
			first_responder_contacted,
			reviewed,
			review_notes,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35
		)
	`

	var altitude, postAltitude interface{}
	if event.Position.Altitude != nil {
		altitude = *event.Position.Altitude
	}
	if event.PostImpact.Position.Altitude != nil {
		postAltitude = *event.PostImpact.Position.Altitude
	}

	_, err := tx.ExecContext(ctx, query,
		event.EventID,
		event.DeviceID,
		event.UserID,
		event.OccurredAt,
		event.Position.Latitude,
		event.Position.Longitude,
		altitude,
		event.ImpactForce,
		event.ImpactDirection,
		event.TiltAngle,
		event.PreImpact.AvgSpeed,
		event.PreImpact.Heading,
		event.PreImpact.Accelerometer.X, event.PreImpact.Accelerometer.Y, event.PreImpact.Accelerometer.Z,
		event.PreImpact.Gyroscope.X, event.PreImpact.Gyroscope.Y, event.PreImpact.Gyroscope.Z,
		event.PostImpact.Accelerometer.X, event.PostImpact.Accelerometer.Y, event.PostImpact.Accelerometer.Z,
		event.PostImpact.Gyroscope.X, event.PostImpact.Gyroscope.Y, event.PostImpact.Gyroscope.Z,
		event.PostImpact.Position.Latitude,
		event.PostImpact.Position.Longitude,
		postAltitude,
		event.Severity,
		event.InjuryProbability,
		event.NotificationsSent,
		event.NotificationAttempts,
		event.FirstResponderContacted,
		event.Reviewed,
		event.ReviewNotes,
		event.CreatedAt,
		event.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create crash event: %w", err)
	}

	return nil
}

// scanCrashEvent 扫描单行碰撞事件
func scanCrashEvent(scan func(dest ...interface{}) error) (*models.CrashEvent, error) {
	var event models.CrashEvent
	var altitude, postAltitude sql.NullFloat64
	var reviewNotes sql.NullString

	err := scan(
		&event.EventID,
		&event.DeviceID,
		&event.UserID,
		&event.OccurredAt,
		&event.Position.Latitude,
		&event.Position.Longitude,
		&altitude,
		&event.ImpactForce,
		&event.ImpactDirection,
		&event.TiltAngle,
		&event.PreImpact.AvgSpeed,
		&event.PreImpact.Heading,
		&event.PreImpact.Accelerometer.X, &event.PreImpact.Accelerometer.Y, &event.PreImpact.Accelerometer.Z,
		&event.PreImpact.Gyroscope.X, &event.PreImpact.Gyroscope.Y, &event.PreImpact.Gyroscope.Z,
		&event.PostImpact.Accelerometer.X, &event.PostImpact.Accelerometer.Y, &event.PostImpact.Accelerometer.Z,
		&event.PostImpact.Gyroscope.X, &event.PostImpact.Gyroscope.Y, &event.PostImpact.Gyroscope.Z,
		&event.PostImpact.Position.Latitude,
		&event.PostImpact.Position.Longitude,
		&postAltitude,
		&event.Severity,
		&event.InjuryProbability,
		&event.NotificationsSent,
		&event.NotificationAttempts,
		&event.FirstResponderContacted,
		&event.Reviewed,
		&reviewNotes,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if altitude.Valid {
		event.Position.Altitude = &altitude.Float64
	}
	if postAltitude.Valid {
		event.PostImpact.Position.Altitude = &postAltitude.Float64
	}
	if reviewNotes.Valid {
		event.ReviewNotes = &reviewNotes.String
	}

	return &event, nil
}

// GetCrashEvent 根据 event_id 获取单个碰撞事件
func (r *CrashEventsRepository) GetCrashEvent(ctx context.Context, eventID string) (*models.CrashEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM crash_events
		WHERE event_id = $1
	`, crashEventColumns)

	row := r.db.QueryRowContext(ctx, query, eventID)
	event, err := scanCrashEvent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("crash event not found: event_id=%s", eventID)
		}
		return nil, fmt.Errorf("failed to get crash event: %w", err)
	}

	return event, nil
}

// buildCrashWhereClause 构建 WHERE 子句
func buildCrashWhereClause(filters CrashEventFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", *argN))
		*args = append(*args, *filters.DeviceID)
		*argN++
	}
	if filters.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", *argN))
		*args = append(*args, *filters.UserID)
		*argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, *filters.Severity)
		*argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}
	if filters.Reviewed != nil {
		where = append(where, fmt.Sprintf("reviewed = $%d", *argN))
		*args = append(*args, *filters.Reviewed)
		*argN++
	}

	return where
}

// ListCrashEvents 列表查询（合取过滤 + offset/limit 分页，按事件时间倒序）
// limit 超过100会被截断到100
func (r *CrashEventsRepository) ListCrashEvents(ctx context.Context, filters CrashEventFilters, limit, offset int) ([]*models.CrashEvent, int, error) {
	args := []interface{}{}
	argN := 1
	where := buildCrashWhereClause(filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 计算总数
	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM crash_events
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count crash events: %w", err)
	}

	// 分页处理
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
		FROM crash_events
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d
	`, crashEventColumns, whereClause, argN, argN+1)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query crash events: %w", err)
	}
	defer rows.Close()

	events := []*models.CrashEvent{}
	for rows.Next() {
		event, err := scanCrashEvent(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan crash event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate crash events: %w", err)
	}

	return events, total, nil
}

// MarkNotificationsSent 记录通知发送结果（由外部通知发送方回写）
func (r *CrashEventsRepository) MarkNotificationsSent(ctx context.Context, eventID string, attempts int) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE crash_events
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
		return fmt.Errorf("crash event not found: event_id=%s", eventID)
	}

	return nil
}

// MarkFirstResponderContacted 标记已联系急救方
func (r *CrashEventsRepository) MarkFirstResponderContacted(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE crash_events
		SET first_responder_contacted = TRUE,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark first responder contacted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("crash event not found: event_id=%s", eventID)
	}

	return nil
}

// MarkReviewed 标记人工复核结果
func (r *CrashEventsRepository) MarkReviewed(ctx context.Context, eventID string, notes *string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE crash_events
		SET reviewed = TRUE,
		    review_notes = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, eventID, notes)
	if err != nil {
		return fmt.Errorf("failed to mark crash event reviewed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("crash event not found: event_id=%s", eventID)
	}

	return nil
}
