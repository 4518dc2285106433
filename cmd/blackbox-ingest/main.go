package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blackbox-ingest/internal/config"
	"blackbox-ingest/internal/logger"
	"blackbox-ingest/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "blackbox-ingest")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting blackbox-ingest service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("telemetry_topic", cfg.Topics.Telemetry),
	)

	// 创建服务
	// 通知发送方由部署环境注入，这里不带具体渠道实现
	ingestService, err := service.NewIngestService(cfg, nil, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create ingest service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ingestService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start ingest service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭：先停收新消息、等在途事务完成，ctx 在 Stop 之后才取消
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := ingestService.Stop(stopCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
