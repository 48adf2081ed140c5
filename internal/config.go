package internal

import (
	"fmt"
	"strings"
	"time"
)

type SessionBackend string

const (
	SessionBadger SessionBackend = "badger"
	SessionRedis  SessionBackend = "redis"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=3001"`
	HealthPort int    `env:"HEALTH_PORT,default=3002"`
	DebugPort  int    `env:"DEBUG_PORT,default=3003"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	SessionBackend string `env:"SESSION_BACKEND,default=badger"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB,default=0"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WSWriteTimeout       time.Duration `env:"WS_WRITE_TIMEOUT,default=5s"`
	WSPingInterval       time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	WSOriginPatterns     string        `env:"WS_ORIGIN_PATTERNS,default=localhost:*"`
	TypingTimeout        time.Duration `env:"TYPING_TIMEOUT,default=2s"`

	IndexBufferSize int           `env:"INDEX_BUFFER_SIZE,default=1024"`
	IndexBatchSize  int           `env:"INDEX_BATCH_SIZE,default=64"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=10s"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=5s"`

	DefaultPageSize  int `env:"DEFAULT_PAGE_SIZE,default=50"`
	MaxPageSize      int `env:"MAX_PAGE_SIZE,default=200"`
	MaxContentLength int `env:"MAX_CONTENT_LENGTH,default=4000"`
	SearchLimit      int `env:"SEARCH_LIMIT,default=50"`
	UserSearchLimit  int `env:"USER_SEARCH_LIMIT,default=10"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Validate checks what the tags cannot express.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	switch SessionBackend(c.SessionBackend) {
	case SessionBadger, SessionRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBadger, SessionRedis, c.SessionBackend)
	}
	if c.ConnectionBufferSize <= 0 || c.IndexBufferSize <= 0 || c.IndexBatchSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive and not above MAX_PAGE_SIZE")
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

// OriginPatterns splits WS_ORIGIN_PATTERNS on commas.
func (c Config) OriginPatterns() []string {
	var patterns []string
	for _, p := range strings.Split(c.WSOriginPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
