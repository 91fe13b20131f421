package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicBase string
}

type Config struct {
	PostgresURI     string
	RedisURI        string
	ListenAddr      string
	SecretKey       string
	CookieName      string
	UploadDir       string
	LockFilePath    string
	VKAppID         string
	VKTokenURL      string
	VKAPIBase       string
	OKTokenURL      string
	OKAPIBase       string
	TelegramAPIBase string
	MaxAPIBase      string
	R2              R2
	RSSInterval     time.Duration
	RecoveryTimeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI:     getEnv("POSTGRES_URI", ""),
		RedisURI:        getEnv("REDIS_URI", ""),
		ListenAddr:      getEnv("LISTEN_ADDR", ":3000"),
		SecretKey:       getEnv("SECRET_KEY", ""),
		CookieName:      getEnv("COOKIE_NAME", ""),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		LockFilePath:    getEnv("LOCK_FILE_PATH", "/tmp/postline-jobs.lock"),
		VKAppID:         getEnv("VK_APP_ID", ""),
		VKTokenURL:      getEnv("VK_TOKEN_URL", "https://id.vk.ru/oauth2/auth"),
		VKAPIBase:       getEnv("VK_API_BASE", "https://api.vk.ru/method"),
		OKTokenURL:      getEnv("OK_TOKEN_URL", "https://api.ok.ru/oauth/token.do"),
		OKAPIBase:       getEnv("OK_API_BASE", "https://api.ok.ru/fb.do"),
		TelegramAPIBase: getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		MaxAPIBase:      getEnv("MAX_API_BASE", "https://botapi.max.ru"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicBase: getEnv("R2_PUBLIC_BASE", ""),
		},
		RSSInterval:     getDurationEnv("RSS_INTERVAL", 15*time.Minute),
		RecoveryTimeout: getDurationEnv("RECOVERY_TIMEOUT", 30*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if mins, err := strconv.Atoi(value); err == nil {
		return time.Duration(mins) * time.Minute
	}
	return defaultValue
}
