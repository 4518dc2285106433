package models

import (
	"time"
)

// 通知载荷的事件类型
const (
	NotificationEventCrash = "crash"
	NotificationEventPanic = "panic"
)

// NotificationPayload 通知载荷
// 由处理器在事件落库后组装，交给外部通知发送方（短信/邮件等渠道不在本服务内）
type NotificationPayload struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"` // crash 或 panic
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Position   Position  `json:"position"`

	// 仅碰撞事件
	Severity          string `json:"severity,omitempty"`
	InjuryProbability int    `json:"injury_probability,omitempty"`

	// 仅紧急求助事件
	TriggerSource string `json:"trigger_source,omitempty"`

	// 人类可读的告警文本
	AlertText string `json:"alert_text"`

	// 有序联系人列表（主联系人在前）
	Contacts []EmergencyContact `json:"contacts"`
}
