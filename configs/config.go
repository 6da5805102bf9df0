package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type R2 struct {
	AccountID     string `envconfig:"ACCOUNT_ID"`
	AccessKey     string `envconfig:"ACCESS_KEY"`
	SecretKey     string `envconfig:"SECRET_KEY"`
	BucketName    string `envconfig:"BUCKET_NAME"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`
}

// OAuthApp holds the client registration for one platform.
type OAuthApp struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	RedirectURI  string `envconfig:"REDIRECT_URI"`
}

type Twitter struct {
	OAuthApp
	ConsumerKey    string `envconfig:"CONSUMER_KEY"`
	ConsumerSecret string `envconfig:"CONSUMER_SECRET"`
	OAuth1Callback string `envconfig:"OAUTH1_CALLBACK"`
}

type Config struct {
	Port          string `envconfig:"PORT" default:"3000"`
	PostgresURI   string `envconfig:"POSTGRES_URI" required:"true"`
	RedisURI      string `envconfig:"REDIS_URI" default:"localhost:6379"`
	FrontendURL   string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:3000"`
	SecretKey     string `envconfig:"SECRET_KEY" required:"true"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	PlatformTimeout      time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"30s"`
	MediaTimeout         time.Duration `envconfig:"PLATFORM_MEDIA_TIMEOUT" default:"5m"`
	PublishConcurrency   int           `envconfig:"PUBLISH_CONCURRENCY" default:"10"`
	PlatformRateLimit    float64       `envconfig:"PLATFORM_RATE_LIMIT" default:"5"`
	PlatformBurst        int           `envconfig:"PLATFORM_BURST" default:"10"`
	MaxPublishAttempts   int           `envconfig:"MAX_PUBLISH_ATTEMPTS" default:"5"`
	RefreshSchedule      string        `envconfig:"REFRESH_SCHEDULE" default:"@every 10m"`
	PendingSweepSchedule string        `envconfig:"PENDING_SWEEP_SCHEDULE" default:"@every 5m"`
	NotificationWebhook  string        `envconfig:"NOTIFICATION_WEBHOOK_URL"`

	Twitter   Twitter  `envconfig:"TWITTER"`
	Facebook  OAuthApp `envconfig:"FACEBOOK"`
	Instagram OAuthApp `envconfig:"INSTAGRAM"`
	Threads   OAuthApp `envconfig:"THREADS"`
	LinkedIn  OAuthApp `envconfig:"LINKEDIN"`
	Google    OAuthApp `envconfig:"GOOGLE"`
	Tiktok    OAuthApp `envconfig:"TIKTOK"`
	R2        R2       `envconfig:"R2"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	switch len(cfg.EncryptionKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes, got %d", len(cfg.EncryptionKey))
	}

	if cfg.PublishConcurrency < 1 {
		cfg.PublishConcurrency = 1
	}

	return &cfg, nil
}
