package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"blackbox-ingest/internal/config"
	"blackbox-ingest/internal/models"
	rediscommon "blackbox-ingest/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TelemetrySink 遥测时序下游（对接入管道而言是不透明的写入目标）
type TelemetrySink interface {
	Write(ctx context.Context, deviceID string, sample *models.TelemetryMessage) error
}

// RedisStreamSink 基于 Redis Streams 的遥测下游实现
// 样本写入流供下游时序消费者处理，同时缓存每个设备的最新样本
type RedisStreamSink struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewRedisStreamSink 创建 Redis Streams 遥测下游
func NewRedisStreamSink(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *RedisStreamSink {
	return &RedisStreamSink{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Write 写入一条遥测样本
func (s *RedisStreamSink) Write(ctx context.Context, deviceID string, sample *models.TelemetryMessage) error {
	streamID, err := rediscommon.PublishJSONToStream(ctx, s.redisClient, s.config.Sink.Stream, sample)
	if err != nil {
		return fmt.Errorf("failed to publish telemetry to stream: %w", err)
	}

	// 缓存设备最新样本（last-write-wins，后到的样本覆盖先到的）
	latestKey := latestSampleKey(deviceID)
	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry sample: %w", err)
	}
	if err := s.redisClient.Set(ctx, latestKey, jsonData, s.config.Sink.LatestTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache latest telemetry: %w", err)
	}

	s.logger.Debug("Telemetry sample written to sink",
		zap.String("device_id", deviceID),
		zap.String("stream", s.config.Sink.Stream),
		zap.String("stream_id", streamID),
	)

	return nil
}

// GetLatest 读取设备最新样本缓存（未命中时返回 (nil, nil)）
func (s *RedisStreamSink) GetLatest(ctx context.Context, deviceID string) (*models.TelemetryMessage, error) {
	data, err := s.redisClient.Get(ctx, latestSampleKey(deviceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest telemetry: %w", err)
	}

	var sample models.TelemetryMessage
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest telemetry: %w", err)
	}
	return &sample, nil
}

func latestSampleKey(deviceID string) string {
	return "blackbox:device:" + deviceID + ":latest"
}
