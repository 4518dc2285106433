package notifier

import (
	"context"
	"fmt"
	"time"

	"blackbox-ingest/internal/models"

	"go.uber.org/zap"
)

// Sender 通知发送方接口（短信/邮件等渠道由外部实现）
// 返回实际发送尝试次数，供回写到事件记录
type Sender interface {
	Send(ctx context.Context, payload *models.NotificationPayload) (int, error)
}

// AttemptRecorder 发送结果回写接口（处理器实现）
type AttemptRecorder interface {
	MarkNotificationsSent(ctx context.Context, eventType, eventID string, attempts int) error
}

// RetryingSender 带重试的发送装饰器
// 源设计里通知是即发即忘且没有重试策略，这里明确为：有界重试 + 指数退避，
// 尝试次数回写到事件记录
type RetryingSender struct {
	sender         Sender
	recorder       AttemptRecorder
	maxAttempts    int
	initialBackoff time.Duration
	logger         *zap.Logger
}

// NewRetryingSender 创建带重试的发送器
func NewRetryingSender(sender Sender, recorder AttemptRecorder, maxAttempts int, initialBackoff time.Duration, logger *zap.Logger) *RetryingSender {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	return &RetryingSender{
		sender:         sender,
		recorder:       recorder,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

// Dispatch 发送通知（阻塞直到成功或尝试次数用尽）
// 处理器在独立协程里调用，不阻塞消息管道
func (s *RetryingSender) Dispatch(ctx context.Context, payload *models.NotificationPayload) error {
	backoff := s.initialBackoff
	attempts := 0

	var lastErr error
	for attempts < s.maxAttempts {
		attempts++

		sent, err := s.sender.Send(ctx, payload)
		if sent > attempts {
			// Sender 内部做了多次尝试时以它上报的次数为准
			attempts = sent
		}
		if err == nil {
			s.recordResult(ctx, payload, attempts)
			return nil
		}
		lastErr = err

		s.logger.Warn("Notification send attempt failed",
			zap.String("event_id", payload.EventID),
			zap.String("event_type", payload.EventType),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		if attempts >= s.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	// 尝试用尽也要把次数记录下来，便于运营侧补发
	s.recordResult(ctx, payload, attempts)
	return fmt.Errorf("failed to send notification after %d attempts: %w", attempts, lastErr)
}

func (s *RetryingSender) recordResult(ctx context.Context, payload *models.NotificationPayload, attempts int) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.MarkNotificationsSent(ctx, payload.EventType, payload.EventID, attempts); err != nil {
		s.logger.Error("Failed to record notification attempts",
			zap.String("event_id", payload.EventID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}

// BuildCrashPayload 组装碰撞事件通知载荷
func BuildCrashPayload(event *models.CrashEvent, device *models.Device, contacts []models.EmergencyContact) *models.NotificationPayload {
	alertText := fmt.Sprintf(
		"Crash detected for %s at %s: severity %s, injury probability %d%%, location (%.5f, %.5f)",
		device.Name,
		event.OccurredAt.Format(time.RFC3339),
		event.Severity,
		event.InjuryProbability,
		event.Position.Latitude,
		event.Position.Longitude,
	)

	return &models.NotificationPayload{
		EventID:           event.EventID,
		EventType:         models.NotificationEventCrash,
		DeviceID:          device.DeviceID,
		DeviceName:        device.Name,
		UserID:            device.UserID,
		OccurredAt:        event.OccurredAt,
		Position:          event.Position,
		Severity:          event.Severity,
		InjuryProbability: event.InjuryProbability,
		AlertText:         alertText,
		Contacts:          contacts,
	}
}

// BuildPanicPayload 组装紧急求助通知载荷
func BuildPanicPayload(event *models.PanicEvent, device *models.Device, contacts []models.EmergencyContact) *models.NotificationPayload {
	alertText := fmt.Sprintf(
		"Panic signal (%s) from %s at %s, location (%.5f, %.5f)",
		event.TriggerSource,
		device.Name,
		event.OccurredAt.Format(time.RFC3339),
		event.Position.Latitude,
		event.Position.Longitude,
	)

	return &models.NotificationPayload{
		EventID:       event.EventID,
		EventType:     models.NotificationEventPanic,
		DeviceID:      device.DeviceID,
		DeviceName:    device.Name,
		UserID:        device.UserID,
		OccurredAt:    event.OccurredAt,
		Position:      event.Position,
		TriggerSource: event.TriggerSource,
		AlertText:     alertText,
		Contacts:      contacts,
	}
}
