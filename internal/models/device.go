package models

import (
	"time"
)

// 设备连接状态
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
	DeviceStatusError   = "error" // 碰撞事件后置为 error，等待人工处理
)

// Device 设备（对应 devices 表）
// 设备记录由外部生命周期管理创建和删除，接入服务只更新连接状态
type Device struct {
	DeviceID   string    `json:"device_id" db:"device_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	Status     string    `json:"status" db:"status"` // online, offline, error
	LastSeen   time.Time `json:"last_seen" db:"last_seen"`
	BatteryPct *int      `json:"battery_pct,omitempty" db:"battery_pct"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
