package validator

import (
	"fmt"

	"blackbox-ingest/internal/models"
)

// ValidationError 结构化校验错误（字段路径 + 原因）
// 校验失败只导致消息被丢弃并记录日志，绝不导致管道崩溃
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ============================================
// 公共字段校验
// ============================================

func validatePosition(field string, pos models.Position) *ValidationError {
	if pos.Latitude < -90 || pos.Latitude > 90 {
		return invalid(field+".latitude", fmt.Sprintf("must be in [-90,90], got %v", pos.Latitude))
	}
	if pos.Longitude < -180 || pos.Longitude > 180 {
		return invalid(field+".longitude", fmt.Sprintf("must be in [-180,180], got %v", pos.Longitude))
	}
	return nil
}

func validateDeviceID(field, bodyID, topicID string) *ValidationError {
	if bodyID == "" {
		return invalid(field, "is required")
	}
	// 载荷内的 device_id 与主题解析出的 device_id 必须一致
	if topicID != "" && bodyID != topicID {
		return invalid(field, fmt.Sprintf("does not match topic device id %q", topicID))
	}
	return nil
}

func validateTimestamp(field string, ts int64) *ValidationError {
	if ts <= 0 {
		return invalid(field, "is required and must be positive")
	}
	return nil
}

// ============================================
// 按消息类别校验
// ============================================

// ValidateTelemetry 校验遥测消息
// topicDeviceID 来自主题解析，用于与载荷内的 device_id 交叉校验
func ValidateTelemetry(msg *models.TelemetryMessage, topicDeviceID string) error {
	if err := validateDeviceID("device_id", msg.DeviceID, topicDeviceID); err != nil {
		return err
	}
	if err := validateTimestamp("timestamp", msg.Timestamp); err != nil {
		return err
	}
	if err := validatePosition("position", msg.Position); err != nil {
		return err
	}
	if msg.Speed < 0 {
		return invalid("speed", fmt.Sprintf("must be non-negative, got %v", msg.Speed))
	}
	if msg.Heading < 0 || msg.Heading > 360 {
		return invalid("heading", fmt.Sprintf("must be in [0,360], got %v", msg.Heading))
	}
	if msg.BatteryPct != nil && (*msg.BatteryPct < 0 || *msg.BatteryPct > 100) {
		return invalid("battery_pct", fmt.Sprintf("must be in [0,100], got %d", *msg.BatteryPct))
	}
	return nil
}

// ValidateDiagnostics 校验诊断消息
func ValidateDiagnostics(msg *models.DiagnosticsMessage, topicDeviceID string) error {
	if err := validateDeviceID("device_id", msg.DeviceID, topicDeviceID); err != nil {
		return err
	}
	if err := validateTimestamp("timestamp", msg.Timestamp); err != nil {
		return err
	}
	if msg.BatteryPct < 0 || msg.BatteryPct > 100 {
		return invalid("battery_pct", fmt.Sprintf("must be in [0,100], got %d", msg.BatteryPct))
	}
	return nil
}

// ValidateCrash 校验碰撞事件消息
// 撞击前后窗口必须完整：严重程度分类依赖取证数据，部分数据宁可拒绝也不以
// 空值落库
func ValidateCrash(msg *models.CrashMessage, topicDeviceID string) error {
	if err := validateDeviceID("device_id", msg.DeviceID, topicDeviceID); err != nil {
		return err
	}
	if err := validateTimestamp("timestamp", msg.Timestamp); err != nil {
		return err
	}
	if err := validatePosition("position", msg.Position); err != nil {
		return err
	}
	if msg.ImpactForce < 0 {
		return invalid("impact_force", fmt.Sprintf("must be non-negative, got %v", msg.ImpactForce))
	}
	if msg.TiltAngle < 0 || msg.TiltAngle > 180 {
		return invalid("tilt_angle", fmt.Sprintf("must be in [0,180], got %v", msg.TiltAngle))
	}
	if msg.PreImpact == nil {
		return invalid("pre_impact", "is required")
	}
	if msg.PreImpact.AvgSpeed == nil {
		return invalid("pre_impact.avg_speed", "is required")
	}
	if *msg.PreImpact.AvgSpeed < 0 {
		return invalid("pre_impact.avg_speed", fmt.Sprintf("must be non-negative, got %v", *msg.PreImpact.AvgSpeed))
	}
	if msg.PreImpact.Heading == nil {
		return invalid("pre_impact.heading", "is required")
	}
	if *msg.PreImpact.Heading < 0 || *msg.PreImpact.Heading > 360 {
		return invalid("pre_impact.heading", fmt.Sprintf("must be in [0,360], got %v", *msg.PreImpact.Heading))
	}
	if msg.PreImpact.Accelerometer == nil {
		return invalid("pre_impact.accelerometer", "is required")
	}
	if msg.PreImpact.Gyroscope == nil {
		return invalid("pre_impact.gyroscope", "is required")
	}
	if msg.PostImpact == nil {
		return invalid("post_impact", "is required")
	}
	if msg.PostImpact.Accelerometer == nil {
		return invalid("post_impact.accelerometer", "is required")
	}
	if msg.PostImpact.Gyroscope == nil {
		return invalid("post_impact.gyroscope", "is required")
	}
	if msg.PostImpact.Position == nil {
		return invalid("post_impact.position", "is required")
	}
	if err := validatePosition("post_impact.position", *msg.PostImpact.Position); err != nil {
		return err
	}
	return nil
}

// ValidatePanic 校验紧急求助消息
func ValidatePanic(msg *models.PanicMessage, topicDeviceID string) error {
	if err := validateDeviceID("device_id", msg.DeviceID, topicDeviceID); err != nil {
		return err
	}
	if err := validateTimestamp("timestamp", msg.Timestamp); err != nil {
		return err
	}
	if err := validatePosition("position", msg.Position); err != nil {
		return err
	}
	if msg.Speed < 0 {
		return invalid("speed", fmt.Sprintf("must be non-negative, got %v", msg.Speed))
	}
	if msg.Heading < 0 || msg.Heading > 360 {
		return invalid("heading", fmt.Sprintf("must be in [0,360], got %v", msg.Heading))
	}
	if msg.TriggerSource != models.PanicTriggerManual && msg.TriggerSource != models.PanicTriggerAuto {
		return invalid("trigger_source", fmt.Sprintf("must be %q or %q, got %q",
			models.PanicTriggerManual, models.PanicTriggerAuto, msg.TriggerSource))
	}
	return nil
}
