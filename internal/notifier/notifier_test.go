package notifier

import (
	"context"
	"fmt"
	"testing"
	"time"

	"blackbox-ingest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender 可编程的发送方：前 failures 次返回错误
type fakeSender struct {
	failures int
	calls    int
}

func (f *fakeSender) Send(ctx context.Context, payload *models.NotificationPayload) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, fmt.Errorf("gateway unavailable")
	}
	return 0, nil
}

// fakeRecorder 记录回写调用
type fakeRecorder struct {
	eventType string
	eventID   string
	attempts  int
	calls     int
}

func (f *fakeRecorder) MarkNotificationsSent(ctx context.Context, eventType, eventID string, attempts int) error {
	f.calls++
	f.eventType = eventType
	f.eventID = eventID
	f.attempts = attempts
	return nil
}

func testPayload() *models.NotificationPayload {
	return &models.NotificationPayload{
		EventID:   "evt-1",
		EventType: models.NotificationEventCrash,
		DeviceID:  "BB-1001",
		UserID:    "user-1",
	}
}

// ============================================
// 重试发送测试
// ============================================

func TestDispatch_SucceedsFirstAttempt(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	s := NewRetryingSender(sender, recorder, 3, time.Millisecond, zap.NewNop())

	err := s.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, 1, recorder.attempts)
	assert.Equal(t, models.NotificationEventCrash, recorder.eventType)
	assert.Equal(t, "evt-1", recorder.eventID)
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	// 前两次失败第三次成功：回写的尝试次数是3
	sender := &fakeSender{failures: 2}
	recorder := &fakeRecorder{}
	s := NewRetryingSender(sender, recorder, 3, time.Millisecond, zap.NewNop())

	err := s.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, 3, recorder.attempts)
}

func TestDispatch_ExhaustedStillRecordsAttempts(t *testing.T) {
	// 尝试用尽也要把次数回写，便于运营侧补发
	sender := &fakeSender{failures: 10}
	recorder := &fakeRecorder{}
	s := NewRetryingSender(sender, recorder, 3, time.Millisecond, zap.NewNop())

	err := s.Dispatch(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, 3, recorder.attempts)
}

func TestDispatch_ContextCanceledDuringBackoff(t *testing.T) {
	sender := &fakeSender{failures: 10}
	s := NewRetryingSender(sender, nil, 3, time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Dispatch(ctx, testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sender.calls)
}

func TestNewRetryingSender_DefaultsApplied(t *testing.T) {
	s := NewRetryingSender(&fakeSender{}, nil, 0, 0, zap.NewNop())
	assert.Equal(t, 3, s.maxAttempts)
	assert.Equal(t, time.Second, s.initialBackoff)
}

// ============================================
// 载荷组装测试
// ============================================

func TestBuildCrashPayload(t *testing.T) {
	occurredAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	event := &models.CrashEvent{
		EventID:           "evt-crash-1",
		DeviceID:          "BB-1001",
		UserID:            "user-1",
		OccurredAt:        occurredAt,
		Position:          models.Position{Latitude: 12.97, Longitude: 77.59},
		Severity:          models.SeverityCritical,
		InjuryProbability: 61,
	}
	device := &models.Device{
		DeviceID: "BB-1001",
		UserID:   "user-1",
		Name:     "Pulsar 150",
	}
	contacts := []models.EmergencyContact{
		{ContactID: "c-1", Name: "Asha", Phone: "+91-9000000001", IsPrimary: true},
		{ContactID: "c-2", Name: "Ravi", Phone: "+91-9000000002"},
	}

	payload := BuildCrashPayload(event, device, contacts)

	assert.Equal(t, "evt-crash-1", payload.EventID)
	assert.Equal(t, models.NotificationEventCrash, payload.EventType)
	assert.Equal(t, "BB-1001", payload.DeviceID)
	assert.Equal(t, "Pulsar 150", payload.DeviceName)
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, models.SeverityCritical, payload.Severity)
	assert.Equal(t, 61, payload.InjuryProbability)
	require.Len(t, payload.Contacts, 2)
	assert.True(t, payload.Contacts[0].IsPrimary)

	assert.Contains(t, payload.AlertText, "Pulsar 150")
	assert.Contains(t, payload.AlertText, "CRITICAL")
	assert.Contains(t, payload.AlertText, "61%")
	assert.Contains(t, payload.AlertText, "12.97000")
}

func TestBuildPanicPayload(t *testing.T) {
	occurredAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	event := &models.PanicEvent{
		EventID:       "evt-panic-1",
		DeviceID:      "BB-1001",
		UserID:        "user-1",
		OccurredAt:    occurredAt,
		Position:      models.Position{Latitude: 12.97, Longitude: 77.59},
		TriggerSource: models.PanicTriggerManual,
	}
	device := &models.Device{
		DeviceID: "BB-1001",
		UserID:   "user-1",
		Name:     "Pulsar 150",
	}

	payload := BuildPanicPayload(event, device, nil)

	assert.Equal(t, "evt-panic-1", payload.EventID)
	assert.Equal(t, models.NotificationEventPanic, payload.EventType)
	assert.Equal(t, models.PanicTriggerManual, payload.TriggerSource)
	assert.Empty(t, payload.Severity)
	assert.Contains(t, payload.AlertText, "manual")
	assert.Contains(t, payload.AlertText, "Pulsar 150")
}
