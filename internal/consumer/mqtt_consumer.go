package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"blackbox-ingest/internal/config"
	mqttcommon "blackbox-ingest/internal/mqtt"
	"blackbox-ingest/internal/processor"

	"go.uber.org/zap"
)

// 消息类别（由主题解析得出）
const (
	ClassTelemetry   = "telemetry"
	ClassDiagnostics = "diagnostics"
	ClassCrash       = "crash"
	ClassPanic       = "panic"
)

// InboundMessage 入站消息（附带接收元数据）
type InboundMessage struct {
	DeviceID   string    // 从主题解析出的设备标识
	Class      string    // 消息类别
	Topic      string    // 来源主题
	Payload    []byte
	ReceivedAt time.Time // 接收时间
}

// MQTTConsumer MQTT消息消费者
// paho 的投递回调只做主题解析和入队；每个消息类别一条带缓冲的通道，
// 各自由独立的 worker 排空，避免慢处理阻塞 broker 的投递循环。
// 不同设备之间、同一设备不同类别之间都没有处理顺序保证
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	processor  *processor.Processor
	logger     *zap.Logger

	telemetryCh   chan InboundMessage
	diagnosticsCh chan InboundMessage
	crashCh       chan InboundMessage
	panicCh       chan InboundMessage

	wg       sync.WaitGroup
	stopOnce sync.Once

	// 保护通道关闭与入队的竞争：关停后 paho 可能还有在途回调
	mu     sync.RWMutex
	closed bool
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	proc *processor.Processor,
	logger *zap.Logger,
) *MQTTConsumer {
	queueSize := cfg.Processor.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &MQTTConsumer{
		config:        cfg,
		mqttClient:    mqttClient,
		processor:     proc,
		logger:        logger,
		telemetryCh:   make(chan InboundMessage, queueSize),
		diagnosticsCh: make(chan InboundMessage, queueSize),
		crashCh:       make(chan InboundMessage, queueSize),
		panicCh:       make(chan InboundMessage, queueSize),
	}
}

// Start 启动消费者：订阅四个主题并拉起各类别的 worker
// 每个主题使用与其消息价值匹配的QoS等级：遥测允许丢失（QoS0），
// 诊断确认投递（QoS1），碰撞/求助精确一次（QoS2）
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.wg.Add(4)
	go c.drain(ctx, c.telemetryCh, c.processor.ProcessTelemetry)
	go c.drain(ctx, c.diagnosticsCh, c.processor.ProcessDiagnostics)
	go c.drain(ctx, c.crashCh, c.processor.ProcessCrash)
	go c.drain(ctx, c.panicCh, c.processor.ProcessPanic)

	subscriptions := []struct {
		topic string
		qos   byte
	}{
		{c.config.Topics.Telemetry, mqttcommon.QoSAtMostOnce},
		{c.config.Topics.Diagnostics, mqttcommon.QoSAtLeastOnce},
		{c.config.Topics.Crash, mqttcommon.QoSExactlyOnce},
		{c.config.Topics.Panic, mqttcommon.QoSExactlyOnce},
	}

	for _, sub := range subscriptions {
		if err := c.mqttClient.Subscribe(sub.topic, sub.qos, c.handleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", sub.topic, err)
		}
		c.logger.Info("Subscribed to topic",
			zap.String("topic", sub.topic),
			zap.Uint8("qos", uint8(sub.qos)),
		)
	}

	c.logger.Info("MQTT consumer started")
	return nil
}

// Stop 停止消费者：先退订停止收新消息，再等在途消息处理完
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		topics := []string{
			c.config.Topics.Telemetry,
			c.config.Topics.Diagnostics,
			c.config.Topics.Crash,
			c.config.Topics.Panic,
		}
		if err := c.mqttClient.Unsubscribe(topics...); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
			stopErr = err
		}

		c.mu.Lock()
		c.closed = true
		close(c.telemetryCh)
		close(c.diagnosticsCh)
		close(c.crashCh)
		close(c.panicCh)
		c.mu.Unlock()

		// 等 worker 排空通道（受调用方 ctx 限制）
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("Timed out waiting for workers to drain")
		}

		c.logger.Info("MQTT consumer stopped")
	})
	return stopErr
}

// handleMessage paho 投递回调：解析主题、入队
// 任何解析失败都是本地错误（丢弃并记录），绝不让它弄崩订阅循环
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	deviceID, class, err := ParseTopic(topic)
	if err != nil {
		c.logger.Warn("Dropping message with unparseable topic",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}

	msg := InboundMessage{
		DeviceID:   deviceID,
		Class:      class,
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		// 关停中不再接收新消息
		return nil
	}

	var ch chan InboundMessage
	switch class {
	case ClassTelemetry:
		ch = c.telemetryCh
	case ClassDiagnostics:
		ch = c.diagnosticsCh
	case ClassCrash:
		ch = c.crashCh
	case ClassPanic:
		ch = c.panicCh
	}

	select {
	case ch <- msg:
	default:
		// 队列满时丢弃而不是阻塞 paho 的投递循环；
		// 丢失面与各主题的QoS语义一致
		c.logger.Warn("Message queue full, dropping message",
			zap.String("topic", topic),
			zap.String("class", class),
		)
	}

	return nil
}

// drain 排空单个类别的通道
// 单条消息的处理错误只记录日志，不影响其他消息
func (c *MQTTConsumer) drain(ctx context.Context, ch chan InboundMessage, handle func(ctx context.Context, topicDeviceID string, payload []byte) error) {
	defer c.wg.Done()

	for msg := range ch {
		if err := handle(ctx, msg.DeviceID, msg.Payload); err != nil {
			c.logger.Warn("Message processing failed",
				zap.String("topic", msg.Topic),
				zap.String("class", msg.Class),
				zap.String("device_id", msg.DeviceID),
				zap.Time("received_at", msg.ReceivedAt),
				zap.Error(err),
			)
		}
	}
}

// ParseTopic 解析主题，提取设备标识和消息类别
// 主题格式:
//
//	v1/{deviceId}/telemetry
//	v1/{deviceId}/diagnostics
//	v1/{deviceId}/events/crash
//	v1/{deviceId}/events/panic
func ParseTopic(topic string) (deviceID, class string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return "", "", fmt.Errorf("invalid topic format: %s", topic)
	}

	deviceID = parts[1]
	if deviceID == "" {
		return "", "", fmt.Errorf("empty device id in topic: %s", topic)
	}

	switch {
	case len(parts) == 3 && parts[2] == "telemetry":
		return deviceID, ClassTelemetry, nil
	case len(parts) == 3 && parts[2] == "diagnostics":
		return deviceID, ClassDiagnostics, nil
	case len(parts) == 4 && parts[2] == "events" && parts[3] == "crash":
		return deviceID, ClassCrash, nil
	case len(parts) == 4 && parts[2] == "events" && parts[3] == "panic":
		return deviceID, ClassPanic, nil
	default:
		return "", "", fmt.Errorf("unknown message class in topic: %s", topic)
	}
}
