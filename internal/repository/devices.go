package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"blackbox-ingest/internal/models"

	"go.uber.org/zap"
)

// DevicesRepository 设备仓库
// 设备记录的创建/删除属于外部生命周期管理，这里只做查询和状态更新；
// 未注册设备的消息在处理层被直接拒绝，绝不自动建档
type DevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDevicesRepository 创建设备仓库
func NewDevicesRepository(db *sql.DB, logger *zap.Logger) *DevicesRepository {
	return &DevicesRepository{
		db:     db,
		logger: logger,
	}
}

// GetDevice 根据 device_id 查询设备
// 未找到时返回 (nil, nil)，由调用方决定如何处理未知设备
func (r *DevicesRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			device_id,
			user_id,
			name,
			status,
			last_seen,
			battery_pct,
			created_at,
			updated_at
		FROM devices
		WHERE device_id = $1
	`

	var d models.Device
	var batteryPct sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID,
		&d.UserID,
		&d.Name,
		&d.Status,
		&d.LastSeen,
		&batteryPct,
		&d.CreatedAt,
		&d.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 未注册设备
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if batteryPct.Valid {
		v := int(batteryPct.Int64)
		d.BatteryPct = &v
	}

	return &d, nil
}

// UpdateDeviceStatus 更新设备状态和最后在线时间（可选附带电量）
// 幂等：同一消息重放只会留下最后一次写入的结果（last-write-wins）
func (r *DevicesRepository) UpdateDeviceStatus(ctx context.Context, deviceID, status string, lastSeen time.Time, batteryPct *int) error {
	return updateDeviceStatus(ctx, r.db, deviceID, status, lastSeen, batteryPct)
}

// UpdateDeviceStatusTx 事务内版本，与事件落库共用同一个事务作用域
func (r *DevicesRepository) UpdateDeviceStatusTx(ctx context.Context, tx *sql.Tx, deviceID, status string, lastSeen time.Time, batteryPct *int) error {
	return updateDeviceStatus(ctx, tx, deviceID, status, lastSeen, batteryPct)
}

func updateDeviceStatus(ctx context.Context, ex executor, deviceID, status string, lastSeen time.Time, batteryPct *int) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	var result sql.Result
	var err error

	if batteryPct != nil {
		query := `
			UPDATE devices
			SET status = $2,
			    last_seen = $3,
			    battery_pct = $4,
			    updated_at = CURRENT_TIMESTAMP
			WHERE device_id = $1
		`
		result, err = ex.ExecContext(ctx, query, deviceID, status, lastSeen, *batteryPct)
	} else {
		query := `
			UPDATE devices
			SET status = $2,
			    last_seen = $3,
			    updated_at = CURRENT_TIMESTAMP
			WHERE device_id = $1
		`
		result, err = ex.ExecContext(ctx, query, deviceID, status, lastSeen)
	}

	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}

	return nil
}

// UpdateDeviceLastSeenTx 只更新最后在线时间，状态保持不变（紧急求助路径）
func (r *DevicesRepository) UpdateDeviceLastSeenTx(ctx context.Context, tx *sql.Tx, deviceID string, lastSeen time.Time) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE devices
		SET last_seen = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $1
	`

	result, err := tx.ExecContext(ctx, query, deviceID, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to update device last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}

	return nil
}

// UpdateDeviceBattery 更新设备电量（诊断消息路径）
func (r *DevicesRepository) UpdateDeviceBattery(ctx context.Context, deviceID string, batteryPct int, lastSeen time.Time) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE devices
		SET battery_pct = $2,
		    last_seen = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, deviceID, batteryPct, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to update device battery: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: device_id=%s", deviceID)
	}

	return nil
}
