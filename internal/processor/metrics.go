package processor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics 处理指标
// 错误计数按错误分类统计（校验失败/未知设备/持久化失败），
// 是管道内部故障的唯一可见面之一（另一个是结构化日志）
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	TelemetryProcessed   int64 // 处理的遥测消息数
	DiagnosticsProcessed int64 // 处理的诊断消息数
	CrashProcessed       int64 // 处理的碰撞事件数
	PanicProcessed       int64 // 处理的紧急求助事件数

	// 错误分类统计
	ErrorsValidation    int64 // 校验失败（消息丢弃）
	ErrorsUnknownDevice int64 // 未注册设备（消息丢弃）
	ErrorsPersistence   int64 // 持久化失败（事务回滚，安全记录可能丢失）
	ErrorsSink          int64 // 遥测下游写入失败

	// 启动时间
	StartTime time.Time
}

// NewMetrics 创建指标
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// MetricsSnapshot 指标快照（不带锁，可安全复制）
type MetricsSnapshot struct {
	TelemetryProcessed   int64
	DiagnosticsProcessed int64
	CrashProcessed       int64
	PanicProcessed       int64
	ErrorsValidation     int64
	ErrorsUnknownDevice  int64
	ErrorsPersistence    int64
	ErrorsSink           int64
	StartTime            time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		TelemetryProcessed:   m.TelemetryProcessed,
		DiagnosticsProcessed: m.DiagnosticsProcessed,
		CrashProcessed:       m.CrashProcessed,
		PanicProcessed:       m.PanicProcessed,
		ErrorsValidation:     m.ErrorsValidation,
		ErrorsUnknownDevice:  m.ErrorsUnknownDevice,
		ErrorsPersistence:    m.ErrorsPersistence,
		ErrorsSink:           m.ErrorsSink,
		StartTime:            m.StartTime,
	}
}

// IncrementProcessed 按消息类别增加处理计数
func (m *Metrics) IncrementProcessed(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch class {
	case "telemetry":
		m.TelemetryProcessed++
	case "diagnostics":
		m.DiagnosticsProcessed++
	case "crash":
		m.CrashProcessed++
	case "panic":
		m.PanicProcessed++
	}
}

// IncrementError 按错误分类增加错误计数
func (m *Metrics) IncrementError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch errorType {
	case "validation":
		m.ErrorsValidation++
	case "unknown_device":
		m.ErrorsUnknownDevice++
	case "persistence":
		m.ErrorsPersistence++
	case "sink":
		m.ErrorsSink++
	}
}

// Report 周期性输出指标日志
func (m *Metrics) Report(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := m.GetSnapshot()
			logger.Info("Processor metrics",
				zap.Int64("telemetry_processed", snapshot.TelemetryProcessed),
				zap.Int64("diagnostics_processed", snapshot.DiagnosticsProcessed),
				zap.Int64("crash_processed", snapshot.CrashProcessed),
				zap.Int64("panic_processed", snapshot.PanicProcessed),
				zap.Int64("errors_validation", snapshot.ErrorsValidation),
				zap.Int64("errors_unknown_device", snapshot.ErrorsUnknownDevice),
				zap.Int64("errors_persistence", snapshot.ErrorsPersistence),
				zap.Int64("errors_sink", snapshot.ErrorsSink),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
