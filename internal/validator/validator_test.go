package validator

import (
	"testing"

	"blackbox-ingest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func validTelemetry() *models.TelemetryMessage {
	return &models.TelemetryMessage{
		DeviceID:  "BB-1001",
		Timestamp: 1700000000,
		Position:  models.Position{Latitude: 12.97, Longitude: 77.59},
		Speed:     42.5,
		Heading:   180,
	}
}

func validCrash() *models.CrashMessage {
	return &models.CrashMessage{
		DeviceID:        "BB-1001",
		Timestamp:       1700000000,
		Position:        models.Position{Latitude: 12.97, Longitude: 77.59},
		ImpactForce:     6.5,
		ImpactDirection: 90,
		TiltAngle:       55,
		PreImpact: &models.PreImpactPayload{
			AvgSpeed:      floatPtr(60),
			Heading:       floatPtr(180),
			Accelerometer: &models.Vector3{X: 0.1, Y: -0.2, Z: 9.8},
			Gyroscope:     &models.Vector3{X: 0.01, Y: 0.02, Z: 0.0},
		},
		PostImpact: &models.PostImpactPayload{
			Accelerometer: &models.Vector3{X: 3.5, Y: 1.2, Z: 2.1},
			Gyroscope:     &models.Vector3{X: 1.5, Y: 0.4, Z: 0.2},
			Position:      &models.Position{Latitude: 12.971, Longitude: 77.591},
		},
	}
}

func validPanic() *models.PanicMessage {
	return &models.PanicMessage{
		DeviceID:      "BB-1001",
		Timestamp:     1700000000,
		Position:      models.Position{Latitude: 12.97, Longitude: 77.59},
		Speed:         10,
		Heading:       90,
		TriggerSource: models.PanicTriggerManual,
	}
}

// ============================================
// 遥测校验测试
// ============================================

func TestValidateTelemetry_Success(t *testing.T) {
	msg := validTelemetry()
	msg.BatteryPct = intPtr(80)
	require.NoError(t, ValidateTelemetry(msg, "BB-1001"))
}

func TestValidateTelemetry_LatitudeOutOfRange(t *testing.T) {
	msg := validTelemetry()
	msg.Position.Latitude = 95

	err := ValidateTelemetry(msg, "BB-1001")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "position.latitude", verr.Field)
}

func TestValidateTelemetry_NegativeSpeed(t *testing.T) {
	msg := validTelemetry()
	msg.Speed = -1

	var verr *ValidationError
	require.ErrorAs(t, ValidateTelemetry(msg, "BB-1001"), &verr)
	assert.Equal(t, "speed", verr.Field)
}

func TestValidateTelemetry_HeadingOutOfRange(t *testing.T) {
	msg := validTelemetry()
	msg.Heading = 361

	var verr *ValidationError
	require.ErrorAs(t, ValidateTelemetry(msg, "BB-1001"), &verr)
	assert.Equal(t, "heading", verr.Field)
}

func TestValidateTelemetry_BatteryOutOfRange(t *testing.T) {
	msg := validTelemetry()
	msg.BatteryPct = intPtr(120)

	var verr *ValidationError
	require.ErrorAs(t, ValidateTelemetry(msg, "BB-1001"), &verr)
	assert.Equal(t, "battery_pct", verr.Field)
}

func TestValidateTelemetry_DeviceIDMismatchWithTopic(t *testing.T) {
	// 载荷内的 device_id 与主题解析出的不一致时按校验失败处理
	msg := validTelemetry()

	var verr *ValidationError
	require.ErrorAs(t, ValidateTelemetry(msg, "BB-9999"), &verr)
	assert.Equal(t, "device_id", verr.Field)
}

// ============================================
// 碰撞校验测试
// ============================================

func TestValidateCrash_Success(t *testing.T) {
	require.NoError(t, ValidateCrash(validCrash(), "BB-1001"))
}

func TestValidateCrash_MissingPostImpactAccelerometer(t *testing.T) {
	// 取证数据不完整的碰撞消息必须被拒绝，绝不以空值落库
	msg := validCrash()
	msg.PostImpact.Accelerometer = nil

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "post_impact.accelerometer", verr.Field)
}

func TestValidateCrash_MissingPreImpactWindow(t *testing.T) {
	msg := validCrash()
	msg.PreImpact = nil

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "pre_impact", verr.Field)
}

func TestValidateCrash_MissingPreImpactSpeed(t *testing.T) {
	msg := validCrash()
	msg.PreImpact.AvgSpeed = nil

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "pre_impact.avg_speed", verr.Field)
}

func TestValidateCrash_MissingPostImpactPosition(t *testing.T) {
	msg := validCrash()
	msg.PostImpact.Position = nil

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "post_impact.position", verr.Field)
}

func TestValidateCrash_NegativeImpactForce(t *testing.T) {
	msg := validCrash()
	msg.ImpactForce = -0.5

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "impact_force", verr.Field)
}

func TestValidateCrash_TiltAngleOutOfRange(t *testing.T) {
	msg := validCrash()
	msg.TiltAngle = 200

	var verr *ValidationError
	require.ErrorAs(t, ValidateCrash(msg, "BB-1001"), &verr)
	assert.Equal(t, "tilt_angle", verr.Field)
}

// ============================================
// 紧急求助校验测试
// ============================================

func TestValidatePanic_Success(t *testing.T) {
	require.NoError(t, ValidatePanic(validPanic(), "BB-1001"))

	msg := validPanic()
	msg.TriggerSource = models.PanicTriggerAuto
	require.NoError(t, ValidatePanic(msg, "BB-1001"))
}

func TestValidatePanic_InvalidTriggerSource(t *testing.T) {
	// 触发来源只接受 manual 和 auto 两个枚举值
	msg := validPanic()
	msg.TriggerSource = "accidental"

	var verr *ValidationError
	require.ErrorAs(t, ValidatePanic(msg, "BB-1001"), &verr)
	assert.Equal(t, "trigger_source", verr.Field)
}

func TestValidatePanic_MissingTimestamp(t *testing.T) {
	msg := validPanic()
	msg.Timestamp = 0

	var verr *ValidationError
	require.ErrorAs(t, ValidatePanic(msg, "BB-1001"), &verr)
	assert.Equal(t, "timestamp", verr.Field)
}

// ============================================
// 诊断校验测试
// ============================================

func TestValidateDiagnostics_Success(t *testing.T) {
	msg := &models.DiagnosticsMessage{
		DeviceID:   "BB-1001",
		Timestamp:  1700000000,
		BatteryPct: 65,
	}
	require.NoError(t, ValidateDiagnostics(msg, "BB-1001"))
}

func TestValidateDiagnostics_BatteryOutOfRange(t *testing.T) {
	msg := &models.DiagnosticsMessage{
		DeviceID:   "BB-1001",
		Timestamp:  1700000000,
		BatteryPct: -5,
	}

	var verr *ValidationError
	require.ErrorAs(t, ValidateDiagnostics(msg, "BB-1001"), &verr)
	assert.Equal(t, "battery_pct", verr.Field)
}
