package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"capture-agent/capture"
	"capture-agent/config"
	"capture-agent/constant"
	"capture-agent/encoder"
	recordingHandler "capture-agent/handler"
	"capture-agent/pkg/rabbitmq"
	"capture-agent/pkg/upload"
	"capture-agent/repository"
	"capture-agent/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := zerolog.Ctx(ctx)
	logger.Info().Str("env", cfg.App.Environment).Msg("starting capture agent")
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, err := repository.NewRepo(cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to open chunk store")
	}

	var publisher rabbitmq.Publisher
	if cfg.Queue != nil && cfg.Queue.Host != "" {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			logger.Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			publisher = rabbitmq.NewPublisher(conn, cfg.Queue)
		}
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build uploader")
	}

	controller := service.NewController(ctx, cfg, repo, uploader, publisher,
		func(audio config.Audio) (capture.Source, error) {
			return capture.NewMalgoSource(capture.MalgoConfig{
				SampleRate:   uint32(audio.SampleRate),
				Channels:     uint32(audio.Channels),
				BufferFrames: uint32(audio.FrameSize),
			}), nil
		},
		encoder.NewLameCodec,
	)

	// Surface interrupted sessions; recovery is a user decision, never an
	// automatic delete.
	if ids, err := controller.ListUnfinished(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to list unfinished recordings")
	} else if len(ids) > 0 {
		logger.Warn().Strs("session_ids", ids).Msg("unfinished recordings found, finalize or discard via the API")
	}

	r := gin.Default()
	addRoutes(r, controller)

	httpServer := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("start http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// A live session is flushed before exit; on upload failure the durable
	// chunks stay for recovery at next startup.
	state := controller.State()
	if state == constant.SessionStateCapturing || state == constant.SessionStatePaused {
		stopCtx, stopCancel := context.WithTimeout(logger.WithContext(context.Background()), 30*time.Second)
		if _, err := controller.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("failed to finalize session during shutdown, chunks preserved")
		}
		stopCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("capture agent stopped")
}

func addRoutes(r *gin.Engine, controller *service.Controller) {
	h := &recordingHandler.RecordingHandler{Controller: controller}

	api := r.Group("/api/v1")
	api.POST("/recordings", h.Start)
	api.POST("/recordings/:id/pause", h.Pause)
	api.POST("/recordings/:id/resume", h.Resume)
	api.POST("/recordings/:id/stop", h.Stop)
	api.GET("/recordings/unfinished", h.ListUnfinished)
	api.POST("/recordings/:id/finalize", h.Finalize)
	api.DELETE("/recordings/:id", h.Discard)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "state": controller.State()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func newUploader(cfg *config.Config) (upload.Uploader, error) {
	switch cfg.Upload.Driver {
	case "s3":
		if cfg.ObjectStore == nil {
			return nil, errors.New("s3 upload driver requires minio configuration")
		}
		return upload.NewMinioUploader(cfg.ObjectStore, cfg.Upload.Bucket), nil
	case "http", "":
		if cfg.Upload.Endpoint == "" {
			return nil, errors.New("http upload driver requires upload.endpoint")
		}
		return upload.NewHTTPUploader(cfg.Upload.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown upload driver %q", cfg.Upload.Driver)
	}
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
