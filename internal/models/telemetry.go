package models

// Position 位置（经纬度 + 可选海拔）
type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Vector3 三轴向量（加速度计/陀螺仪）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TelemetryMessage 遥测消息（周期性上报，不单独落库，只产生设备状态副作用）
type TelemetryMessage struct {
	DeviceID      string   `json:"device_id"`
	Timestamp     int64    `json:"timestamp"` // Unix 时间戳（秒）
	Position      Position `json:"position"`
	Speed         float64  `json:"speed"`   // km/h，非负
	Heading       float64  `json:"heading"` // 度，[0,360]
	BatteryPct    *int     `json:"battery_pct,omitempty"`
	Accelerometer *Vector3 `json:"accelerometer,omitempty"`
	Gyroscope     *Vector3 `json:"gyroscope,omitempty"`
}

// DiagnosticsMessage 诊断消息（设备健康状态，QoS1确认投递）
type DiagnosticsMessage struct {
	DeviceID        string  `json:"device_id"`
	Timestamp       int64   `json:"timestamp"`
	BatteryPct      int     `json:"battery_pct"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`
	SignalStrength  *int    `json:"signal_strength,omitempty"` // dBm
}
