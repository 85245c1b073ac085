package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/korylprince/chat-image-relay/chatbot"
	"github.com/korylprince/chat-image-relay/httpapi"
	"github.com/korylprince/chat-image-relay/imagegen"
	"github.com/korylprince/chat-image-relay/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	logger, err := newLogger(config.Debug)
	if err != nil {
		log.Fatalln("Could not create logger:", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pattern, err := chatbot.NewPattern(config.DirectiveMarker, config.DirectiveKey)
	if err != nil {
		logger.Fatal("Invalid directive configuration", zap.Error(err))
	}

	variants, err := config.variants()
	if err != nil {
		logger.Fatal("Invalid image variants", zap.Error(err))
	}

	pipeline, err := imagegen.NewPipeline(logger.Named("imagegen"), m,
		imagegen.NewHTTPFetcher(&http.Client{}, config.ImageMaxBytes),
		imagegen.Config{
			Endpoint: config.ImageEndpoint,
			Variants: variants,
			Delivery: config.ImageDelivery,
			Timeout:  config.ImageTimeout,
		})
	if err != nil {
		logger.Fatal("Invalid image configuration", zap.Error(err))
	}

	client := chatbot.NewAIClient(chatbot.ClientConfig{
		Endpoint:    config.AIEndpoint,
		APIKey:      config.AIAPIKey,
		Model:       config.AIModel,
		MaxTokens:   config.AIMaxTokens,
		Temperature: config.AITemperature,
		TopP:        config.AITopP,
	}, &http.Client{})

	prompt := chatbot.FilePrompt{Path: config.SystemPromptFile, Fallback: chatbot.DefaultSystemPrompt()}

	chat := chatbot.NewHandler(logger.Named("chatbot"), client, pipeline, prompt, m, chatbot.Options{
		Pattern:        pattern,
		ScanMaxBytes:   config.ScanMaxBytes,
		QueueDepth:     config.TurnQueue,
		PingInterval:   config.WSPingInterval,
		ReadTimeout:    config.WSReadTimeout,
		WriteTimeout:   config.WSWriteTimeout,
		MaxMessageSize: config.WSMaxMessage,
	})

	r := httpapi.NewRouter(logger.Named("http"), chat, httpapi.Options{
		StaticDir:   config.StaticDir,
		Gatherer:    reg,
		Connections: chat.Registry().Len,
	})

	server := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening", zap.String("addr", config.ListenAddr),
			zap.String("model", config.AIModel),
			zap.String("image_mode", config.ImageMode),
			zap.Int("image_variants", len(variants)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked WebSocket connections are not tracked by http.Server
	chat.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Could not shut down gracefully", zap.Error(err))
	}

	logger.Info("Stopped")
}
