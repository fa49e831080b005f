package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	TTS        TTSConfig
	AudioCache AudioCacheConfig
	Fragments  FragmentsConfig
	Storage    StorageConfig
	MQTT       MQTTConfig
	Telegram   TelegramConfig
	Health     HealthConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
}

// JWTConfig holds the shared secret used by the backend to sign access tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig drives the playback poller.
type SchedulerConfig struct {
	Enabled      bool
	Timezone     string
	PollInterval time.Duration
	Units        []string
}

// TTSConfig configures the speech synthesis provider.
type TTSConfig struct {
	BaseURL       string
	APIKey        string
	Voice         string
	LanguageCode  string
	SpeakingRate  float64
	AudioEncoding string
	Timeout       time.Duration
}

// AudioCacheConfig tunes the synthesized audio cache.
type AudioCacheConfig struct {
	MemoEnabled       bool
	MemoTTL           time.Duration
	TemporaryTTLDays  int
	SweepInterval     time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	WorkerRetryDelay  time.Duration
}

// FragmentsConfig points at the static hour/minute fragment library.
type FragmentsConfig struct {
	BaseURL          string
	PathPrefix       string
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	Pause            time.Duration
}

// StorageConfig selects where synthesized audio objects are persisted.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PathStyle     bool
	CDNURL          string
	RequestTimeout  time.Duration
}

// MQTTConfig enables pushing playback events to display devices.
type MQTTConfig struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

// TelegramConfig enables operator alerts.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatIDs  []int64
}

// HealthConfig bounds dependency probes.
type HealthConfig struct {
	Timeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:     v.GetBool("ENABLE_REDIS"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:      v.GetBool("ENABLE_SCHEDULER"),
		Timezone:     v.GetString("SCHEDULER_TIMEZONE"),
		PollInterval: parseDuration(v.GetString("SCHEDULER_POLL_INTERVAL"), time.Minute),
		Units:        splitAndTrim(v.GetString("SCHEDULER_UNITS")),
	}

	cfg.TTS = TTSConfig{
		BaseURL:       v.GetString("TTS_BASE_URL"),
		APIKey:        v.GetString("TTS_API_KEY"),
		Voice:         v.GetString("TTS_VOICE"),
		LanguageCode:  v.GetString("TTS_LANGUAGE_CODE"),
		SpeakingRate:  v.GetFloat64("TTS_SPEAKING_RATE"),
		AudioEncoding: v.GetString("TTS_AUDIO_ENCODING"),
		Timeout:       parseDuration(v.GetString("TTS_TIMEOUT"), 15*time.Second),
	}

	cfg.AudioCache = AudioCacheConfig{
		MemoEnabled:       v.GetBool("AUDIO_CACHE_MEMO_ENABLED"),
		MemoTTL:           parseDuration(v.GetString("AUDIO_CACHE_MEMO_TTL"), time.Hour),
		TemporaryTTLDays:  v.GetInt("AUDIO_CACHE_TEMPORARY_TTL_DAYS"),
		SweepInterval:     parseDuration(v.GetString("AUDIO_CACHE_SWEEP_INTERVAL"), 6*time.Hour),
		WorkerConcurrency: v.GetInt("AUDIO_CACHE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("AUDIO_CACHE_WORKER_RETRIES"),
		WorkerRetryDelay:  parseDuration(v.GetString("AUDIO_CACHE_WORKER_RETRY_DELAY"), 30*time.Second),
	}

	cfg.Fragments = FragmentsConfig{
		BaseURL:          v.GetString("FRAGMENTS_BASE_URL"),
		PathPrefix:       v.GetString("FRAGMENTS_PATH_PREFIX"),
		ProbeTimeout:     parseDuration(v.GetString("FRAGMENTS_PROBE_TIMEOUT"), 3*time.Second),
		ProbeConcurrency: v.GetInt("FRAGMENTS_PROBE_CONCURRENCY"),
		Pause:            parseDuration(v.GetString("FRAGMENTS_PAUSE"), 300*time.Millisecond),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		PublicBaseURL:   v.GetString("STORAGE_PUBLIC_BASE_URL"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 7*24*time.Hour),
		S3Endpoint:      v.GetString("S3_ENDPOINT"),
		S3Region:        v.GetString("S3_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3AccessKey:     v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:     v.GetString("S3_SECRET_KEY"),
		S3PathStyle:     v.GetBool("S3_FORCE_PATH_STYLE"),
		CDNURL:          v.GetString("S3_CDN_URL"),
		RequestTimeout:  parseDuration(v.GetString("STORAGE_REQUEST_TIMEOUT"), 10*time.Second),
	}

	cfg.MQTT = MQTTConfig{
		Enabled:     v.GetBool("ENABLE_MQTT"),
		BrokerURL:   v.GetString("MQTT_BROKER_URL"),
		ClientID:    v.GetString("MQTT_CLIENT_ID"),
		Username:    v.GetString("MQTT_USERNAME"),
		Password:    v.GetString("MQTT_PASSWORD"),
		TopicPrefix: v.GetString("MQTT_TOPIC_PREFIX"),
		QoS:         v.GetInt("MQTT_QOS"),
	}

	cfg.Telegram = TelegramConfig{
		Enabled:  v.GetBool("ENABLE_TELEGRAM_ALERTS"),
		BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		ChatIDs:  parseInt64List(v.GetString("TELEGRAM_CHAT_IDS")),
	}

	cfg.Health = HealthConfig{
		Timeout: parseDuration(v.GetString("HEALTH_CHECK_TIMEOUT"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "callpanel")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "2s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("SCHEDULER_POLL_INTERVAL", "1m")
	v.SetDefault("SCHEDULER_UNITS", "")

	v.SetDefault("TTS_BASE_URL", "https://texttospeech.googleapis.com/v1")
	v.SetDefault("TTS_API_KEY", "")
	v.SetDefault("TTS_VOICE", "pt-BR-Neural2-A")
	v.SetDefault("TTS_LANGUAGE_CODE", "pt-BR")
	v.SetDefault("TTS_SPEAKING_RATE", 1.0)
	v.SetDefault("TTS_AUDIO_ENCODING", "MP3")
	v.SetDefault("TTS_TIMEOUT", "15s")

	v.SetDefault("AUDIO_CACHE_MEMO_ENABLED", true)
	v.SetDefault("AUDIO_CACHE_MEMO_TTL", "1h")
	v.SetDefault("AUDIO_CACHE_TEMPORARY_TTL_DAYS", 7)
	v.SetDefault("AUDIO_CACHE_SWEEP_INTERVAL", "6h")
	v.SetDefault("AUDIO_CACHE_WORKER_CONCURRENCY", 2)
	v.SetDefault("AUDIO_CACHE_WORKER_RETRIES", 3)
	v.SetDefault("AUDIO_CACHE_WORKER_RETRY_DELAY", "30s")

	v.SetDefault("FRAGMENTS_BASE_URL", "http://localhost:8080")
	v.SetDefault("FRAGMENTS_PATH_PREFIX", "/sounds/hours")
	v.SetDefault("FRAGMENTS_PROBE_TIMEOUT", "3s")
	v.SetDefault("FRAGMENTS_PROBE_CONCURRENCY", 8)
	v.SetDefault("FRAGMENTS_PAUSE", "300ms")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./audio-cache")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/api/v1/audio/files")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_audio_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "168h")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)
	v.SetDefault("STORAGE_REQUEST_TIMEOUT", "10s")

	v.SetDefault("ENABLE_MQTT", false)
	v.SetDefault("MQTT_BROKER_URL", "tcp://localhost:1883")
	v.SetDefault("MQTT_CLIENT_ID", "callpanel-api")
	v.SetDefault("MQTT_TOPIC_PREFIX", "callpanel")
	v.SetDefault("MQTT_QOS", 1)

	v.SetDefault("ENABLE_TELEGRAM_ALERTS", false)
	v.SetDefault("TELEGRAM_CHAT_IDS", "")

	v.SetDefault("HEALTH_CHECK_TIMEOUT", "2s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseInt64List(raw string) []int64 {
	parts := splitAndTrim(raw)
	result := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, id)
	}
	return result
}
