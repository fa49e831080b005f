package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/handler"
	"github.com/noah-isme/callpanel-api/internal/repository"
	"github.com/noah-isme/callpanel-api/internal/service"
	"github.com/noah-isme/callpanel-api/pkg/cache"
	"github.com/noah-isme/callpanel-api/pkg/config"
	"github.com/noah-isme/callpanel-api/pkg/database"
	"github.com/noah-isme/callpanel-api/pkg/logger"
	"github.com/noah-isme/callpanel-api/pkg/notify"
	"github.com/noah-isme/callpanel-api/pkg/realtime"
	"github.com/noah-isme/callpanel-api/pkg/storage"
	"github.com/noah-isme/callpanel-api/pkg/tts"
)

// @title Call Panel API
// @version 1.0.0
// @description Scheduled announcements, audio cache and offline hour announcements for clinic call panels.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	health := service.NewHealthService(nil, cfg.Health.Timeout, metrics)
	health.AddPing(service.PingDependency{Name: "postgres", Pinger: db, Required: true})

	memo, closeMemo := buildMemo(ctx, cfg, metrics, health, logr)
	defer closeMemo()

	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	store, files, err := buildStorage(cfg.Storage, signer)
	if err != nil {
		logr.Fatal("failed to init audio storage", zap.Error(err))
	}

	hub := realtime.NewHub(32)
	publisher := realtime.Fanout{hub}
	if cfg.MQTT.Enabled {
		mqttPublisher, err := realtime.NewMQTTPublisher(realtime.MQTTOptions{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      logr,
		})
		if err != nil {
			logr.Warn("mqtt disabled", zap.Error(err))
		} else {
			defer mqttPublisher.Close()
			publisher = append(publisher, mqttPublisher)
		}
	}

	var alerts notify.Notifier
	if cfg.Telegram.Enabled {
		telegram, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, logr)
		if err != nil {
			logr.Warn("telegram alerts disabled", zap.Error(err))
		} else {
			alerts = telegram
		}
	}

	location := loadLocation(cfg.Scheduler.Timezone, logr)

	synth := tts.NewClient(tts.Options{
		BaseURL:       cfg.TTS.BaseURL,
		APIKey:        cfg.TTS.APIKey,
		LanguageCode:  cfg.TTS.LanguageCode,
		AudioEncoding: cfg.TTS.AudioEncoding,
		Timeout:       cfg.TTS.Timeout,
	})
	health.AddHTTP(service.HTTPDependency{Name: "tts", URL: synth.HealthURL()})

	announcementRepo := repository.NewAnnouncementRepository(db)
	phraseRepo := repository.NewPhraseRepository(db)
	audioRepo := repository.NewAudioCacheRepository(db)

	validate := service.NewValidator()

	audioCache := service.NewAudioCacheService(audioRepo, announcementRepo, store, synth, memo, metrics, alerts, logr, service.AudioCacheConfig{
		DefaultVoice:     cfg.TTS.Voice,
		DefaultRate:      cfg.TTS.SpeakingRate,
		SynthesisTimeout: cfg.TTS.Timeout,
		TemporaryTTLDays: cfg.AudioCache.TemporaryTTLDays,
		SweepInterval:    cfg.AudioCache.SweepInterval,
	})
	audioWorker := service.NewAudioWorker(audioCache, service.AudioWorkerConfig{
		Workers:    cfg.AudioCache.WorkerConcurrency,
		MaxRetries: cfg.AudioCache.WorkerRetries,
		RetryDelay: cfg.AudioCache.WorkerRetryDelay,
	}, logr)
	audioWorker.Start(ctx)
	defer audioWorker.Stop()
	audioCache.StartRetentionSweep(ctx)

	announcements := service.NewAnnouncementService(announcementRepo, audioCache, audioWorker, validate, logr)
	phrases := service.NewPhraseService(phraseRepo, publisher, validate, logr)
	scheduler := service.NewSchedulerService(announcementRepo, phraseRepo, audioCache, publisher, metrics, alerts, logr, location)

	if cfg.Scheduler.Enabled {
		poller := service.NewPlaybackPoller(scheduler, announcementRepo, cfg.Scheduler.Units, cfg.Scheduler.PollInterval, logr)
		scheduler.SetKicker(poller)
		poller.Start(ctx)
		logr.Info("playback poller started", zap.Duration("interval", cfg.Scheduler.PollInterval), zap.Strings("units", cfg.Scheduler.Units))
	}

	hours := service.NewHourAnnouncer(service.HourAnnouncerConfig{
		BaseURL:          cfg.Fragments.BaseURL,
		PathPrefix:       cfg.Fragments.PathPrefix,
		ProbeTimeout:     cfg.Fragments.ProbeTimeout,
		ProbeConcurrency: cfg.Fragments.ProbeConcurrency,
		Pause:            cfg.Fragments.Pause,
	}, nil, publisher, alerts, metrics, logr, location)
	if sequence, err := hours.Compose(0, 0); err == nil {
		health.AddHTTP(service.HTTPDependency{Name: "fragments", URL: sequence[0].URL})
	}

	var opener interface {
		Open(key string) (*os.File, error)
	}
	if files != nil {
		opener = files
	}

	router := newRouter(cfg, logr, metrics, service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	}), routeHandlers{
		announcements: handler.NewAnnouncementHandler(announcements, scheduler, audioCache),
		phrases:       handler.NewPhraseHandler(phrases, scheduler),
		audio:         handler.NewAudioHandler(audioCache, opener, signer, validate, cfg.AudioCache.TemporaryTTLDays),
		hours:         handler.NewHourHandler(hours),
		realtime:      handler.NewRealtimeHandler(hub, cfg.CORS.AllowedOrigins, logr),
		metrics:       handler.NewMetricsHandler(metrics, health),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// buildMemo returns a nil memo when Redis is disabled or unreachable. The returned func is always safe to call.
func buildMemo(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, health *service.HealthService, logr *zap.Logger) (*service.AudioMemo, func()) {
	noop := func() {}
	if !cfg.Redis.Enabled {
		return nil, noop
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, audio memo disabled", zap.Error(err))
		return nil, noop
	}
	repo := repository.NewCacheRepository(client, logr)
	health.AddPing(service.PingDependency{Name: "redis", Pinger: repo})
	closeRepo := func() {
		if err := repo.Close(); err != nil {
			logr.Warn("redis close failed", zap.Error(err))
		}
	}
	return service.NewAudioMemo(repo, metrics, cfg.AudioCache.MemoTTL, logr, cfg.AudioCache.MemoEnabled), closeRepo
}

// buildStorage returns the object store and, for local storage, the store again as a file opener.
func buildStorage(cfg config.StorageConfig, signer *storage.SignedURLSigner) (storage.ObjectStore, *storage.LocalStorage, error) {
	if cfg.Driver == config.StorageDriverS3 {
		s3Store, err := storage.NewS3Storage(storage.S3Options{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3PathStyle,
			CDNURL:         cfg.CDNURL,
			Timeout:        cfg.RequestTimeout,
		})
		return s3Store, nil, err
	}
	local, err := storage.NewLocalStorage(cfg.LocalDir, cfg.PublicBaseURL, signer)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func loadLocation(name string, logr *zap.Logger) *time.Location {
	location, err := time.LoadLocation(name)
	if err != nil {
		logr.Warn("timezone not found, using fixed UTC-3", zap.String("timezone", name), zap.Error(err))
		return time.FixedZone("BRT", -3*60*60)
	}
	return location
}
