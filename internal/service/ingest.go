package service

import (
	"context"
	"database/sql"
	"fmt"

	"blackbox-ingest/internal/config"
	"blackbox-ingest/internal/consumer"
	"blackbox-ingest/internal/database"
	mqttcommon "blackbox-ingest/internal/mqtt"
	"blackbox-ingest/internal/notifier"
	"blackbox-ingest/internal/processor"
	rediscommon "blackbox-ingest/internal/redis"
	"blackbox-ingest/internal/repository"
	"blackbox-ingest/internal/sink"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// IngestService 接入服务
// 启动时显式构造全部依赖并按引用传入各组件，不使用模块级可变状态
type IngestService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	processor  *processor.Processor
	consumer   *consumer.MQTTConsumer

	metricsCancel context.CancelFunc
}

// NewIngestService 创建接入服务
// sender 是外部通知发送方（可为 nil，此时不做通知移交）
func NewIngestService(cfg *config.Config, sender notifier.Sender, logger *zap.Logger) (*IngestService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 创建Repository
	deviceRepo := repository.NewDevicesRepository(db, logger)
	crashRepo := repository.NewCrashEventsRepository(db, logger)
	panicRepo := repository.NewPanicEventsRepository(db, logger)
	contactsRepo := repository.NewEmergencyContactsRepository(db, logger)

	// 创建遥测下游
	telemetrySink := sink.NewRedisStreamSink(cfg, redisClient, logger)

	// 创建Processor
	proc := processor.NewProcessor(cfg, db, deviceRepo, crashRepo, panicRepo, contactsRepo, telemetrySink, logger)
	if sender != nil {
		dispatcher := notifier.NewRetryingSender(sender, proc, cfg.Notifier.MaxAttempts, cfg.Notifier.InitialBackoff, logger)
		proc.SetDispatcher(dispatcher)
	}

	// 创建Consumer
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, proc, logger)

	return &IngestService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		processor:  proc,
		consumer:   mqttConsumer,
	}, nil
}

// Start 启动服务
func (s *IngestService) Start(ctx context.Context) error {
	s.logger.Info("Starting ingest service components")

	// 启动指标上报
	metricsCtx, cancel := context.WithCancel(ctx)
	s.metricsCancel = cancel
	go s.processor.Metrics().Report(metricsCtx, s.config.Processor.MetricsReport, s.logger)

	// 启动MQTT消费者
	if err := s.consumer.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	s.logger.Info("Ingest service started successfully")
	return nil
}

// Stop 优雅关闭
// 顺序：先停收新消息并排空在途处理，再断MQTT，最后关Redis和数据库连接池
func (s *IngestService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ingest service")

	if s.metricsCancel != nil {
		s.metricsCancel()
	}

	// 停止Consumer（退订 + 等在途消息处理完）
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		if err := rediscommon.Close(s.redis); err != nil {
			s.logger.Error("Error closing redis", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
		}
	}

	s.logger.Info("Ingest service stopped")
	return nil
}

// Processor 暴露处理器（供外部协作方回写通知结果等）
func (s *IngestService) Processor() *processor.Processor {
	return s.processor
}
