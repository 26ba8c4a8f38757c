package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Matching modes
const (
	MatchModeScan  = "scan"  // fetch a fresh snapshot of every identity per attempt
	MatchModeIndex = "index" // preselect candidates from a vector index, then rescore
)

// Completion strategies
const (
	CompletionLink       = "link"       // email a sign-in link after a match
	CompletionCredential = "credential" // sign in directly after a match
)

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Camera    CameraConfig
	Matching  MatchingConfig
	Auth      AuthConfig
	Mail      MailConfig
	Web       WebConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the identity HNSW index (optional, if empty index is rebuilt on startup)
}

type EmbeddingConfig struct {
	URL     string        // defaults to http://localhost:8000
	Timeout time.Duration // per request timeout
}

type CameraConfig struct {
	InputFormat string `yaml:"input_format"` // ffmpeg input format (v4l2, avfoundation, dshow)
	Device      string `yaml:"device"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FrameRate   int    `yaml:"frame_rate"`
	SnapshotDir string `yaml:"-"` // optional directory mirroring the live frame for preview
}

type MatchingConfig struct {
	Threshold      float64 `yaml:"threshold"`
	Mode           string  `yaml:"mode"`
	CandidateLimit int     `yaml:"candidate_limit"`
}

type AuthConfig struct {
	Completion    string        `yaml:"completion"`
	LinkTTL       time.Duration `yaml:"link_ttl"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	LinkBaseURL   string        `yaml:"-"` // public URL of the finish-signin page
	SigningSecret string        `yaml:"-"` // HMAC secret for link tokens and session cookies
}

type MailConfig struct {
	Host     string // empty selects the log mailer
	Port     int
	Username string
	Password string
	From     string
}

type WebConfig struct {
	AllowedOrigins []string // extra CORS origins, localhost is always allowed
	SuccessURL     string   // where the finish-signin page redirects after sign-in
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

type defaults struct {
	Matching MatchingConfig `yaml:"matching"`
	Camera   CameraConfig   `yaml:"camera"`
	Auth     AuthConfig     `yaml:"auth"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration string, falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Embedding: EmbeddingConfig{
			URL:     envString("EMBEDDING_URL", "http://localhost:8000"),
			Timeout: envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Camera: CameraConfig{
			InputFormat: envString("CAMERA_INPUT_FORMAT", def.Camera.InputFormat),
			Device:      envString("CAMERA_DEVICE", def.Camera.Device),
			Width:       envInt("CAMERA_WIDTH", def.Camera.Width),
			Height:      envInt("CAMERA_HEIGHT", def.Camera.Height),
			FrameRate:   envInt("CAMERA_FRAME_RATE", def.Camera.FrameRate),
			SnapshotDir: os.Getenv("CAMERA_SNAPSHOT_DIR"),
		},
		Matching: MatchingConfig{
			Threshold:      envFloat("MATCH_THRESHOLD", def.Matching.Threshold),
			Mode:           strings.ToLower(envString("MATCH_MODE", def.Matching.Mode)),
			CandidateLimit: envInt("MATCH_CANDIDATE_LIMIT", def.Matching.CandidateLimit),
		},
		Auth: AuthConfig{
			Completion:    strings.ToLower(envString("AUTH_COMPLETION", def.Auth.Completion)),
			LinkTTL:       envDuration("AUTH_LINK_TTL", def.Auth.LinkTTL),
			SessionTTL:    envDuration("AUTH_SESSION_TTL", def.Auth.SessionTTL),
			LinkBaseURL:   envString("AUTH_LINK_BASE_URL", "http://localhost:8085/finish-signin"),
			SigningSecret: os.Getenv("AUTH_SIGNING_SECRET"),
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envString("SMTP_FROM", "no-reply@localhost"),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			SuccessURL:     envString("WEB_SUCCESS_URL", "/success"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	switch c.Matching.Mode {
	case MatchModeScan, MatchModeIndex:
	default:
		return fmt.Errorf("invalid MATCH_MODE %q: expected %s or %s", c.Matching.Mode, MatchModeScan, MatchModeIndex)
	}
	switch c.Auth.Completion {
	case CompletionLink, CompletionCredential:
	default:
		return fmt.Errorf("invalid AUTH_COMPLETION %q: expected %s or %s", c.Auth.Completion, CompletionLink, CompletionCredential)
	}
	if c.Matching.Threshold <= 0 {
		return fmt.Errorf("MATCH_THRESHOLD must be positive")
	}
	return nil
}

// ValidateSigning refuses to run without AUTH_SIGNING_SECRET. Commands that
// sign link tokens or session cookies call it in addition to Validate.
func (c *Config) ValidateSigning() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("AUTH_SIGNING_SECRET is required to sign links and sessions")
	}
	return nil
}
