package models

import (
	"time"
)

// 碰撞严重程度分级
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// ImpactWindow 撞击前5秒窗口（落库形态，字段齐全）
type ImpactWindow struct {
	AvgSpeed      float64 `json:"avg_speed"`
	Heading       float64 `json:"heading"`
	Accelerometer Vector3 `json:"accelerometer"`
	Gyroscope     Vector3 `json:"gyroscope"`
}

// PostImpactWindow 撞击后窗口（落库形态）
type PostImpactWindow struct {
	Accelerometer Vector3  `json:"accelerometer"`
	Gyroscope     Vector3  `json:"gyroscope"`
	Position      Position `json:"position"`
}

// PreImpactPayload 撞击前窗口的线上载荷形态
// 子字段全部用指针：缺失与零值必须可区分，缺失的取证数据要在校验层拒绝
type PreImpactPayload struct {
	AvgSpeed      *float64 `json:"avg_speed"`
	Heading       *float64 `json:"heading"`
	Accelerometer *Vector3 `json:"accelerometer"`
	Gyroscope     *Vector3 `json:"gyroscope"`
}

// PostImpactPayload 撞击后窗口的线上载荷形态
type PostImpactPayload struct {
	Accelerometer *Vector3  `json:"accelerometer"`
	Gyroscope     *Vector3  `json:"gyroscope"`
	Position      *Position `json:"position"`
}

// CrashMessage 碰撞事件消息（设备上报的原始载荷）
// 前后窗口必须完整，缺失任何子对象都会被校验拒绝
type CrashMessage struct {
	DeviceID        string             `json:"device_id"`
	Timestamp       int64              `json:"timestamp"`
	Position        Position           `json:"position"`
	ImpactForce     float64            `json:"impact_force"`     // G，非负
	ImpactDirection float64            `json:"impact_direction"` // 度
	TiltAngle       float64            `json:"tilt_angle"`       // 度，[0,180]
	PreImpact       *PreImpactPayload  `json:"pre_impact"`
	PostImpact      *PostImpactPayload `json:"post_impact"`
}

// CrashEvent 碰撞事件记录（对应 crash_events 表）
// 取证字段在创建时写入后不可变；severity/injury_probability 只在创建时由分类器
// 计算一次，之后不再重算
type CrashEvent struct {
	EventID         string    `json:"event_id" db:"event_id"`
	DeviceID        string    `json:"device_id" db:"device_id"`
	UserID          string    `json:"user_id" db:"user_id"`
	OccurredAt      time.Time `json:"occurred_at" db:"occurred_at"`
	Position        Position  `json:"position"`
	ImpactForce     float64   `json:"impact_force" db:"impact_force"`
	ImpactDirection float64   `json:"impact_direction" db:"impact_direction"`
	TiltAngle       float64   `json:"tilt_angle" db:"tilt_angle"`

	PreImpact  ImpactWindow     `json:"pre_impact"`
	PostImpact PostImpactWindow `json:"post_impact"`

	// 派生字段（创建时一次性写入）
	Severity          string `json:"severity" db:"severity"`
	InjuryProbability int    `json:"injury_probability" db:"injury_probability"` // [0,100]

	// 响应跟踪字段（创建后可变）
	NotificationsSent       bool       `json:"notifications_sent" db:"notifications_sent"`
	NotificationAttempts    int        `json:"notification_attempts" db:"notification_attempts"`
	FirstResponderContacted bool       `json:"first_responder_contacted" db:"first_responder_contacted"`
	Reviewed                bool       `json:"reviewed" db:"reviewed"`
	ReviewNotes             *string    `json:"review_notes,omitempty" db:"review_notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
