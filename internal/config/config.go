// Package config loads runtime settings from POSECUE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/pnn"
)

const envPrefix = "POSECUE_"

type Config struct {
	Pipeline PipelineConfig
	Slots    SlotsConfig
	Store    StoreConfig
	Server   ServerConfig
	Robot    RobotConfig
	Logging  LoggingConfig
}

type PipelineConfig struct {
	WindowSize     int
	MinConfidence  int
	Sigma          float64
	Kernel         string
	Workers        int
	TrainingFile   string
	CameraID       int
	PredictTick    time.Duration
	DetectTick     time.Duration
	NotifyQueue    int
	RecordPoses    bool
	StartEnabled   bool
	PreviewOverlay bool
}

type SlotsConfig struct {
	PoseKind   string
	PoseName   string
	ActionKind string
	ActionName string
	Broker     string
	Username   string
	Password   string
	Timeout    time.Duration
}

type StoreConfig struct {
	DataDir string
}

type ServerConfig struct {
	Host string
	Port int
}

type RobotConfig struct {
	PluginDir string
	Timeout   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// DBPath returns the SQLite database location.
func (s StoreConfig) DBPath() string {
	return filepath.Join(s.DataDir, "posecue.db")
}

// Load reads the configuration from the environment, filling in defaults.
func Load() *Config {
	dataDir := getEnv("DATA_DIR", defaultDataDir())

	return &Config{
		Pipeline: PipelineConfig{
			WindowSize:     getEnvAsInt("WINDOW_SIZE", 15),
			MinConfidence:  getEnvAsInt("MIN_CONFIDENCE", 40),
			Sigma:          getEnvAsFloat("SIGMA", pnn.DefaultSigma),
			Kernel:         getEnv("KERNEL", pnn.Gaussian.String()),
			Workers:        getEnvAsInt("WORKERS", 0),
			TrainingFile:   getEnv("TRAINING_FILE", ""),
			CameraID:       getEnvAsInt("CAMERA_ID", 0),
			PredictTick:    getEnvAsDuration("PREDICT_TICK", 33*time.Millisecond),
			DetectTick:     getEnvAsDuration("DETECT_TICK", 30*time.Millisecond),
			NotifyQueue:    getEnvAsInt("NOTIFY_QUEUE", 16),
			RecordPoses:    getEnvAsBool("RECORD_POSES", true),
			StartEnabled:   getEnvAsBool("START_ENABLED", true),
			PreviewOverlay: getEnvAsBool("PREVIEW_OVERLAY", true),
		},
		Slots: SlotsConfig{
			PoseKind:   getEnv("POSE_SLOT", string(channel.KindShared)),
			PoseName:   getEnv("POSE_NAME", "posecue_pose"),
			ActionKind: getEnv("ACTION_SLOT", string(channel.KindFile)),
			ActionName: getEnv("ACTION_NAME", filepath.Join(os.TempDir(), "posecue", "action")),
			Broker:     getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			Username:   getEnv("MQTT_USERNAME", ""),
			Password:   getEnv("MQTT_PASSWORD", ""),
			Timeout:    getEnvAsDuration("MQTT_TIMEOUT", 5*time.Second),
		},
		Store: StoreConfig{
			DataDir: dataDir,
		},
		Server: ServerConfig{
			Host: getEnv("HOST", "127.0.0.1"),
			Port: getEnvAsInt("PORT", 8080),
		},
		Robot: RobotConfig{
			PluginDir: getEnv("PLUGIN_DIR", filepath.Join(dataDir, "plugins")),
			Timeout:   getEnvAsDuration("PLUGIN_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Pipeline.WindowSize < 1 {
		errs = append(errs, "window size must be at least 1")
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 100 {
		errs = append(errs, "min confidence must be between 0 and 100")
	}
	if c.Pipeline.Sigma <= 0 {
		errs = append(errs, "sigma must be positive")
	}
	if _, err := pnn.ParseKernel(c.Pipeline.Kernel); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Pipeline.PredictTick <= 0 || c.Pipeline.DetectTick <= 0 {
		errs = append(errs, "loop ticks must be positive")
	}
	if _, err := channel.ParseKind(c.Slots.PoseKind); err != nil {
		errs = append(errs, "pose slot: "+err.Error())
	}
	if _, err := channel.ParseKind(c.Slots.ActionKind); err != nil {
		errs = append(errs, "action slot: "+err.Error())
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Store.DataDir == "" {
		errs = append(errs, "data directory is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

// KernelValue returns the parsed kernel. Call Validate first.
func (c *Config) KernelValue() pnn.Kernel {
	k, err := pnn.ParseKernel(c.Pipeline.Kernel)
	if err != nil {
		return pnn.Gaussian
	}
	return k
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".posecue"
	}
	return filepath.Join(home, ".posecue")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
