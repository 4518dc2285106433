package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"blackbox-ingest/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int {
	return &v
}

func newDevicesRepoWithMock(t *testing.T) (*DevicesRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewDevicesRepository(db, zap.NewNop()), mock, db
}

func TestGetDevice_Success(t *testing.T) {
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"device_id", "user_id", "name", "status", "last_seen", "battery_pct", "created_at", "updated_at",
	}).AddRow("BB-1001", "user-1", "Pulsar 150", models.DeviceStatusOnline, now, 80, now, now)

	mock.ExpectQuery(`SELECT`).WithArgs("BB-1001").WillReturnRows(rows)

	device, err := repo.GetDevice(context.Background(), "BB-1001")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, "BB-1001", device.DeviceID)
	assert.Equal(t, "user-1", device.UserID)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	require.NotNil(t, device.BatteryPct)
	assert.Equal(t, 80, *device.BatteryPct)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDevice_NotFoundReturnsNil(t *testing.T) {
	// 未注册设备返回 (nil, nil)，不报错，由处理层决定拒绝
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("GHOST-999").WillReturnError(sql.ErrNoRows)

	device, err := repo.GetDevice(context.Background(), "GHOST-999")
	require.NoError(t, err)
	assert.Nil(t, device)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDevice_EmptyDeviceID(t *testing.T) {
	repo, _, db := newDevicesRepoWithMock(t)
	defer db.Close()

	_, err := repo.GetDevice(context.Background(), "")
	assert.Error(t, err)
}

func TestUpdateDeviceStatus_WithBattery(t *testing.T) {
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	lastSeen := time.Now()
	mock.ExpectExec(`UPDATE devices`).
		WithArgs("BB-1001", models.DeviceStatusOnline, lastSeen, 75).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDeviceStatus(context.Background(), "BB-1001", models.DeviceStatusOnline, lastSeen, intPtr(75))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeviceStatus_WithoutBattery(t *testing.T) {
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	lastSeen := time.Now()
	mock.ExpectExec(`UPDATE devices`).
		WithArgs("BB-1001", models.DeviceStatusError, lastSeen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDeviceStatus(context.Background(), "BB-1001", models.DeviceStatusError, lastSeen, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeviceStatus_DeviceNotFound(t *testing.T) {
	// 影响行数为0说明设备不存在，应报错而不是静默成功
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	lastSeen := time.Now()
	mock.ExpectExec(`UPDATE devices`).
		WithArgs("GHOST-999", models.DeviceStatusOnline, lastSeen).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDeviceStatus(context.Background(), "GHOST-999", models.DeviceStatusOnline, lastSeen, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device not found")
}

func TestUpdateDeviceBattery_Success(t *testing.T) {
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	lastSeen := time.Now()
	mock.ExpectExec(`UPDATE devices`).
		WithArgs("BB-1001", 65, lastSeen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDeviceBattery(context.Background(), "BB-1001", 65, lastSeen)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeviceStatusTx_InTransaction(t *testing.T) {
	repo, mock, db := newDevicesRepoWithMock(t)
	defer db.Close()

	lastSeen := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE devices`).
		WithArgs("BB-1001", models.DeviceStatusError, lastSeen).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := RunInTransaction(context.Background(), db, func(tx *sql.Tx) error {
		return repo.UpdateDeviceStatusTx(context.Background(), tx, "BB-1001", models.DeviceStatusError, lastSeen, nil)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
