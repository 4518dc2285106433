package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blackbox-ingest/internal/classifier"
	"blackbox-ingest/internal/config"
	"blackbox-ingest/internal/models"
	"blackbox-ingest/internal/notifier"
	"blackbox-ingest/internal/repository"
	"blackbox-ingest/internal/sink"
	"blackbox-ingest/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownDevice 消息引用了未注册的设备
// 接入管道绝不根据入站消息自动建档，未知设备的消息直接丢弃并记录日志
var ErrUnknownDevice = errors.New("unknown device")

// Processor 事件处理器
// 每条消息的处理路径：校验 → （碰撞）分级 → 持久化 → 解析联系人 → 组装通知载荷。
// 校验失败和未知设备都在本层收尾，不会外泄到订阅循环
type Processor struct {
	config       *config.Config
	db           *sql.DB
	deviceRepo   *repository.DevicesRepository
	crashRepo    *repository.CrashEventsRepository
	panicRepo    *repository.PanicEventsRepository
	contactsRepo *repository.EmergencyContactsRepository
	sink         sink.TelemetrySink
	dispatcher   *notifier.RetryingSender
	logger       *zap.Logger
	metrics      *Metrics
}

// NewProcessor 创建事件处理器
func NewProcessor(
	cfg *config.Config,
	db *sql.DB,
	deviceRepo *repository.DevicesRepository,
	crashRepo *repository.CrashEventsRepository,
	panicRepo *repository.PanicEventsRepository,
	contactsRepo *repository.EmergencyContactsRepository,
	telemetrySink sink.TelemetrySink,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		config:       cfg,
		db:           db,
		deviceRepo:   deviceRepo,
		crashRepo:    crashRepo,
		panicRepo:    panicRepo,
		contactsRepo: contactsRepo,
		sink:         telemetrySink,
		logger:       logger,
		metrics:      NewMetrics(),
	}
}

// SetDispatcher 注入通知发送器（启动时装配，允许为空以便禁用通知）
func (p *Processor) SetDispatcher(dispatcher *notifier.RetryingSender) {
	p.dispatcher = dispatcher
}

// Metrics 暴露处理指标
func (p *Processor) Metrics() *Metrics {
	return p.metrics
}

// dbContext 给每次持久化操作加超时，避免连接池耗尽时无界阻塞
func (p *Processor) dbContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.config.Processor.DBTimeout)
}

// lookupDevice 查询设备，未注册时返回 ErrUnknownDevice
func (p *Processor) lookupDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()

	device, err := p.deviceRepo.GetDevice(dbCtx, deviceID)
	if err != nil {
		p.metrics.IncrementError("persistence")
		return nil, fmt.Errorf("failed to look up device %s: %w", deviceID, err)
	}
	if device == nil {
		p.metrics.IncrementError("unknown_device")
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return device, nil
}

// ============================================
// 遥测路径
// ============================================

// ProcessTelemetry 处理遥测消息
// 无需事务：遥测可容忍丢失且幂等，后到的样本覆盖先到的
func (p *Processor) ProcessTelemetry(ctx context.Context, topicDeviceID string, payload []byte) error {
	var msg models.TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.metrics.IncrementError("validation")
		return fmt.Errorf("failed to unmarshal telemetry message: %w", err)
	}

	if err := validator.ValidateTelemetry(&msg, topicDeviceID); err != nil {
		p.metrics.IncrementError("validation")
		return err
	}

	device, err := p.lookupDevice(ctx, msg.DeviceID)
	if err != nil {
		return err
	}

	lastSeen := time.Unix(msg.Timestamp, 0).UTC()
	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()
	if err := p.deviceRepo.UpdateDeviceStatus(dbCtx, device.DeviceID, models.DeviceStatusOnline, lastSeen, msg.BatteryPct); err != nil {
		p.metrics.IncrementError("persistence")
		return fmt.Errorf("failed to update device state: %w", err)
	}

	if err := p.sink.Write(ctx, device.DeviceID, &msg); err != nil {
		p.metrics.IncrementError("sink")
		// 下游写入失败不影响设备状态更新，遥测丢一条可接受
		p.logger.Warn("Failed to write telemetry to sink",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
	}

	p.metrics.IncrementProcessed("telemetry")
	return nil
}

// ============================================
// 诊断路径
// ============================================

// ProcessDiagnostics 处理诊断消息（设备健康上报）
func (p *Processor) ProcessDiagnostics(ctx context.Context, topicDeviceID string, payload []byte) error {
	var msg models.DiagnosticsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.metrics.IncrementError("validation")
		return fmt.Errorf("failed to unmarshal diagnostics message: %w", err)
	}

	if err := validator.ValidateDiagnostics(&msg, topicDeviceID); err != nil {
		p.metrics.IncrementError("validation")
		return err
	}

	device, err := p.lookupDevice(ctx, msg.DeviceID)
	if err != nil {
		return err
	}

	lastSeen := time.Unix(msg.Timestamp, 0).UTC()
	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()
	if err := p.deviceRepo.UpdateDeviceBattery(dbCtx, device.DeviceID, msg.BatteryPct, lastSeen); err != nil {
		p.metrics.IncrementError("persistence")
		return fmt.Errorf("failed to update device battery: %w", err)
	}

	p.metrics.IncrementProcessed("diagnostics")
	return nil
}

// ============================================
// 碰撞路径
// ============================================

// ProcessCrash 处理碰撞事件消息
// 事件插入和设备状态翻转为 error 在同一事务内完成：只有碰撞记录没有
// 设备状态翻转（或反过来）都是不一致的安全信号
func (p *Processor) ProcessCrash(ctx context.Context, topicDeviceID string, payload []byte) error {
	var msg models.CrashMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.metrics.IncrementError("validation")
		return fmt.Errorf("failed to unmarshal crash message: %w", err)
	}

	if err := validator.ValidateCrash(&msg, topicDeviceID); err != nil {
		p.metrics.IncrementError("validation")
		return err
	}

	device, err := p.lookupDevice(ctx, msg.DeviceID)
	if err != nil {
		return err
	}

	// 严重程度和受伤概率只在创建时计算一次，之后不再重算
	severity := classifier.ClassifySeverity(&msg.ImpactForce, &msg.TiltAngle)
	injuryProbability := classifier.InjuryProbability(&msg.ImpactForce, &msg.TiltAngle, msg.PreImpact.AvgSpeed)

	now := time.Now().UTC()
	occurredAt := time.Unix(msg.Timestamp, 0).UTC()
	event := &models.CrashEvent{
		EventID:         uuid.New().String(),
		DeviceID:        device.DeviceID,
		UserID:          device.UserID,
		OccurredAt:      occurredAt,
		Position:        msg.Position,
		ImpactForce:     msg.ImpactForce,
		ImpactDirection: msg.ImpactDirection,
		TiltAngle:       msg.TiltAngle,
		PreImpact: models.ImpactWindow{
			AvgSpeed:      *msg.PreImpact.AvgSpeed,
			Heading:       *msg.PreImpact.Heading,
			Accelerometer: *msg.PreImpact.Accelerometer,
			Gyroscope:     *msg.PreImpact.Gyroscope,
		},
		PostImpact: models.PostImpactWindow{
			Accelerometer: *msg.PostImpact.Accelerometer,
			Gyroscope:     *msg.PostImpact.Gyroscope,
			Position:      *msg.PostImpact.Position,
		},
		Severity:          severity,
		InjuryProbability: injuryProbability,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()
	err = repository.RunInTransaction(dbCtx, p.db, func(tx *sql.Tx) error {
		if err := p.crashRepo.CreateCrashEventTx(dbCtx, tx, event); err != nil {
			return err
		}
		return p.deviceRepo.UpdateDeviceStatusTx(dbCtx, tx, device.DeviceID, models.DeviceStatusError, occurredAt, nil)
	})
	if err != nil {
		p.metrics.IncrementError("persistence")
		// 安全关键记录可能丢失，完整上下文落日志供运营告警
		p.logger.Error("Failed to persist crash event, transaction rolled back",
			zap.String("device_id", device.DeviceID),
			zap.String("event_type", "crash"),
			zap.Time("occurred_at", occurredAt),
			zap.String("severity", severity),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist crash event: %w", err)
	}

	p.metrics.IncrementProcessed("crash")
	p.logger.Info("Crash event persisted",
		zap.String("event_id", event.EventID),
		zap.String("device_id", device.DeviceID),
		zap.String("severity", severity),
		zap.Int("injury_probability", injuryProbability),
	)

	p.handoffNotification(notifier.BuildCrashPayload(event, device, p.resolveContacts(ctx, device)))
	return nil
}

// ============================================
// 紧急求助路径
// ============================================

// ProcessPanic 处理紧急求助消息
// 无分级步骤（紧急求助隐含高优先级）；事件插入与设备 last_seen 更新同一事务
func (p *Processor) ProcessPanic(ctx context.Context, topicDeviceID string, payload []byte) error {
	var msg models.PanicMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.metrics.IncrementError("validation")
		return fmt.Errorf("failed to unmarshal panic message: %w", err)
	}

	if err := validator.ValidatePanic(&msg, topicDeviceID); err != nil {
		p.metrics.IncrementError("validation")
		return err
	}

	device, err := p.lookupDevice(ctx, msg.DeviceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	occurredAt := time.Unix(msg.Timestamp, 0).UTC()
	event := &models.PanicEvent{
		EventID:       uuid.New().String(),
		DeviceID:      device.DeviceID,
		UserID:        device.UserID,
		OccurredAt:    occurredAt,
		Position:      msg.Position,
		Speed:         msg.Speed,
		Heading:       msg.Heading,
		TriggerSource: msg.TriggerSource,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()
	err = repository.RunInTransaction(dbCtx, p.db, func(tx *sql.Tx) error {
		if err := p.panicRepo.CreatePanicEventTx(dbCtx, tx, event); err != nil {
			return err
		}
		// 状态保持不变，只刷新最后在线时间
		return p.deviceRepo.UpdateDeviceLastSeenTx(dbCtx, tx, device.DeviceID, occurredAt)
	})
	if err != nil {
		p.metrics.IncrementError("persistence")
		p.logger.Error("Failed to persist panic event, transaction rolled back",
			zap.String("device_id", device.DeviceID),
			zap.String("event_type", "panic"),
			zap.Time("occurred_at", occurredAt),
			zap.String("trigger_source", msg.TriggerSource),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist panic event: %w", err)
	}

	p.metrics.IncrementProcessed("panic")
	p.logger.Info("Panic event persisted",
		zap.String("event_id", event.EventID),
		zap.String("device_id", device.DeviceID),
		zap.String("trigger_source", msg.TriggerSource),
	)

	p.handoffNotification(notifier.BuildPanicPayload(event, device, p.resolveContacts(ctx, device)))
	return nil
}

// ============================================
// 通知
// ============================================

// resolveContacts 查询归属用户的紧急联系人（主联系人在前）
// 查询失败只记录日志：事件已落库，联系人缺失不应使消息处理失败
func (p *Processor) resolveContacts(ctx context.Context, device *models.Device) []models.EmergencyContact {
	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()

	contacts, err := p.contactsRepo.GetEmergencyContacts(dbCtx, device.UserID)
	if err != nil {
		p.logger.Error("Failed to resolve emergency contacts",
			zap.String("device_id", device.DeviceID),
			zap.String("user_id", device.UserID),
			zap.Error(err),
		)
		return nil
	}
	return contacts
}

// handoffNotification 把通知载荷移交给发送器（即发即忘，不阻塞消息管道）
func (p *Processor) handoffNotification(payload *models.NotificationPayload) {
	if p.dispatcher == nil {
		return
	}

	go func() {
		// 与消息处理的生命周期解耦：订阅循环不等通知结果
		dispatchCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := p.dispatcher.Dispatch(dispatchCtx, payload); err != nil {
			p.logger.Error("Notification dispatch failed",
				zap.String("event_id", payload.EventID),
				zap.String("event_type", payload.EventType),
				zap.Error(err),
			)
		}
	}()
}

// MarkNotificationsSent 发送结果回写（实现 notifier.AttemptRecorder）
func (p *Processor) MarkNotificationsSent(ctx context.Context, eventType, eventID string, attempts int) error {
	dbCtx, cancel := p.dbContext(ctx)
	defer cancel()

	switch eventType {
	case models.NotificationEventCrash:
		return p.crashRepo.MarkNotificationsSent(dbCtx, eventID, attempts)
	case models.NotificationEventPanic:
		return p.panicRepo.MarkNotificationsSent(dbCtx, eventID, attempts)
	default:
		return fmt.Errorf("unknown event type: %s", eventType)
	}
}
