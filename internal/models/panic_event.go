package models

import (
	"time"
)

// 紧急求助触发来源
const (
	PanicTriggerManual = "manual"
	PanicTriggerAuto   = "auto"
)

// PanicMessage 紧急求助消息（设备上报的原始载荷）
type PanicMessage struct {
	DeviceID      string   `json:"device_id"`
	Timestamp     int64    `json:"timestamp"`
	Position      Position `json:"position"`
	Speed         float64  `json:"speed"`
	Heading       float64  `json:"heading"`
	TriggerSource string   `json:"trigger_source"` // manual 或 auto
}

// PanicEvent 紧急求助事件记录（对应 panic_events 表）
// 处置字段（false_alarm/resolved_at/rider_status/notes）由外部复核动作更新，
// 接入服务只负责创建
type PanicEvent struct {
	EventID       string    `json:"event_id" db:"event_id"`
	DeviceID      string    `json:"device_id" db:"device_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	OccurredAt    time.Time `json:"occurred_at" db:"occurred_at"`
	Position      Position  `json:"position"`
	Speed         float64   `json:"speed" db:"speed"`
	Heading       float64   `json:"heading" db:"heading"`
	TriggerSource string    `json:"trigger_source" db:"trigger_source"`

	// 通知跟踪
	NotificationsSent    bool `json:"notifications_sent" db:"notifications_sent"`
	NotificationAttempts int  `json:"notification_attempts" db:"notification_attempts"`

	// 处置字段
	FalseAlarm  bool       `json:"false_alarm" db:"false_alarm"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	RiderStatus *string    `json:"rider_status,omitempty" db:"rider_status"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
