package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Presence   PresenceConfig   `yaml:"presence"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Detector   DetectorConfig   `yaml:"detector"`
	Control    ControlConfig    `yaml:"control"`
	Database   DatabaseConfig   `yaml:"-"`
}

type CameraConfig struct {
	Device      string        `yaml:"device"` // camera index ("0") or a directory of frames to replay
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WindowTitle string        `yaml:"window_title"`
}

type GalleryConfig struct {
	Source string `yaml:"source"` // "file" or "postgres"
	Path   string `yaml:"path"`
}

type MatcherConfig struct {
	Metric    string  `yaml:"metric"`    // "euclidean" or "cosine"
	Threshold float64 `yaml:"threshold"` // matches must be strictly below this distance
	Selection string  `yaml:"selection"` // "nearest" or "first"
	Index     string  `yaml:"index"`     // "exact" or "hnsw"
}

type PresenceConfig struct {
	Scope string `yaml:"scope"` // "run" or "day"
}

type AttendanceConfig struct {
	CutoffHour  int    `yaml:"cutoff_hour"`
	OnTimeLabel string `yaml:"on_time_label"`
	LateLabel   string `yaml:"late_label"`
}

type EvidenceConfig struct {
	Dir         string `yaml:"dir"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type DeliveryConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	QueueSize    int           `yaml:"queue_size"`
	QueuePolicy  string        `yaml:"queue_policy"` // "block" or "drop"
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type DetectorConfig struct {
	Backend      string        `yaml:"backend"` // "http" or "dlib"
	URL          string        `yaml:"url"`
	ModelsPath   string        `yaml:"models_path"`
	MaxFrameSize int           `yaml:"max_frame_size"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ControlConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"-"` // bearer token required for POST /api/v1/stop; empty allows anyone
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (attendance history, gallery store)
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
	RecordingDSN string // MariaDB/MySQL DSN of the recording service, read-only (e.g., app:app@tcp(db:3306)/attendance)
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
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

// envDuration reads an environment variable as a Go duration ("5s", "250ms").
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

// Defaults returns the embedded defaults without consulting the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Camera.Device = envString("CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.ReadTimeout = envDuration("CAPTURE_READ_TIMEOUT", cfg.Camera.ReadTimeout)

	cfg.Gallery.Source = envString("GALLERY_SOURCE", cfg.Gallery.Source)
	cfg.Gallery.Path = envString("GALLERY_PATH", cfg.Gallery.Path)

	cfg.Matcher.Metric = envString("MATCH_METRIC", cfg.Matcher.Metric)
	cfg.Matcher.Threshold = envFloat("MATCH_THRESHOLD", cfg.Matcher.Threshold)
	cfg.Matcher.Selection = envString("MATCH_SELECTION", cfg.Matcher.Selection)
	cfg.Matcher.Index = envString("MATCH_INDEX", cfg.Matcher.Index)

	cfg.Presence.Scope = envString("PRESENCE_SCOPE", cfg.Presence.Scope)

	cfg.Attendance.CutoffHour = envInt("CUTOFF_HOUR", cfg.Attendance.CutoffHour)
	cfg.Attendance.OnTimeLabel = envString("STATUS_ON_TIME", cfg.Attendance.OnTimeLabel)
	cfg.Attendance.LateLabel = envString("STATUS_LATE", cfg.Attendance.LateLabel)

	cfg.Evidence.Dir = envString("EVIDENCE_DIR", cfg.Evidence.Dir)
	cfg.Evidence.JPEGQuality = envInt("EVIDENCE_JPEG_QUALITY", cfg.Evidence.JPEGQuality)

	cfg.Delivery.URL = envString("DELIVERY_URL", cfg.Delivery.URL)
	cfg.Delivery.Timeout = envDuration("DELIVERY_TIMEOUT", cfg.Delivery.Timeout)
	cfg.Delivery.QueueSize = envInt("DELIVERY_QUEUE_SIZE", cfg.Delivery.QueueSize)
	cfg.Delivery.QueuePolicy = envString("DELIVERY_QUEUE_POLICY", cfg.Delivery.QueuePolicy)
	cfg.Delivery.DrainTimeout = envDuration("DELIVERY_DRAIN_TIMEOUT", cfg.Delivery.DrainTimeout)

	cfg.Detector.Backend = envString("DETECTOR", cfg.Detector.Backend)
	cfg.Detector.URL = envString("EMBEDDING_URL", cfg.Detector.URL)
	cfg.Detector.ModelsPath = envString("DLIB_MODELS_PATH", cfg.Detector.ModelsPath)
	cfg.Detector.MaxFrameSize = envInt("DETECTOR_MAX_FRAME_SIZE", cfg.Detector.MaxFrameSize)
	cfg.Detector.Timeout = envDuration("DETECTOR_TIMEOUT", cfg.Detector.Timeout)

	cfg.Control.Addr = envString("CONTROL_ADDR", cfg.Control.Addr)
	cfg.Control.Token = os.Getenv("CONTROL_TOKEN")

	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		RecordingDSN: os.Getenv("RECORDING_DATABASE_DSN"),
	}

	return cfg
}

// UsesPostgres reports whether any configured component needs the PostgreSQL pool.
func (c *Config) UsesPostgres() bool {
	return c.Gallery.Source == "postgres" || c.Database.URL != ""
}
