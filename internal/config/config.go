package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	TCPAddr     string
	HTTPAddr    string
	MetricsPort string
	LogLevel    string

	RedisAddr string
	RedisDB   int

	ProxyAddr    string
	RawLogDir    string
	MaxLineBytes int
	IdleTimeout  time.Duration

	SendTimeout  time.Duration
	StreamBuffer int

	NotifyQueueKey    string
	NotifyPollTimeout time.Duration
	NotifyMaxAttempts int

	EmailSender string
	SMSFrom     string
	FCMKey      string
	APNSKey     string
}

func Load() Config {
	return Config{
		TCPAddr:     getEnv("TCP_ADDR", ":5000"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsPort: getEnv("METRICS_PORT", "9000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		ProxyAddr:    getEnv("PROXY_ADDR", ""),
		RawLogDir:    getEnv("RAW_LOG_DIR", ""),
		MaxLineBytes: getEnvInt("MAX_LINE_BYTES", 64*1024),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 0),

		SendTimeout:  getEnvDuration("SEND_TIMEOUT", 5*time.Second),
		StreamBuffer: getEnvInt("STREAM_BUFFER", 256),

		NotifyQueueKey:    getEnv("NOTIFY_QUEUE_KEY", "notifications:pending"),
		NotifyPollTimeout: getEnvDuration("NOTIFY_POLL_TIMEOUT", time.Second),
		NotifyMaxAttempts: getEnvInt("NOTIFY_MAX_ATTEMPTS", 1),

		EmailSender: getEnv("EMAIL_SENDER", "noreply@gps.local"),
		SMSFrom:     getEnv("TWILIO_FROM", "+10000000000"),
		FCMKey:      getEnv("FCM_KEY", ""),
		APNSKey:     getEnv("APNS_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1500ms") or whole seconds ("2").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
