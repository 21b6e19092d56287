// Package config loads and validates the agent's YAML configuration via
// viper, grounded on internal/config/config.go's Load/Save/SaveTo and
// configDir() idiom, with the field set trimmed to what the remote-control
// agent actually needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/LanternOps/rc-agent/internal/logging"
)

var log = logging.L("config")

// Config holds everything the agent needs to identify itself, reach the
// signaling server, and run its capture/encode pipeline.
type Config struct {
	DeviceID    string `mapstructure:"device_id"`
	DeviceToken string `mapstructure:"device_token"`
	ServerURL   string `mapstructure:"server_url"`

	ControlTopicPrefix string `mapstructure:"control_topic_prefix"`
	MediaTopicPrefix   string `mapstructure:"media_topic_prefix"`

	CaptureMaxWidth     int `mapstructure:"capture_max_width"`
	CaptureMaxHeight    int `mapstructure:"capture_max_height"`
	FrameBufferCapacity int `mapstructure:"frame_buffer_capacity"`

	PrimaryFPS        int `mapstructure:"primary_fps"`
	PrimaryBitrateBps int `mapstructure:"primary_bitrate_bps"`
	FallbackFPS       int `mapstructure:"fallback_fps"`
	FallbackQuality   int `mapstructure:"fallback_quality"`

	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Default returns a Config with every field the agent can run with out of
// the box, minus the per-device identity fields which must be enrolled.
func Default() *Config {
	return &Config{
		ControlTopicPrefix: "device_rc",
		MediaTopicPrefix:   "device_media",

		CaptureMaxWidth:     1280,
		CaptureMaxHeight:    800,
		FrameBufferCapacity: 30,

		PrimaryFPS:        15,
		PrimaryBitrateBps: 2_000_000,
		FallbackFPS:       5,
		FallbackQuality:   75,

		HeartbeatIntervalSeconds: 30,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from cfgFile, or from the platform config
// directory's agent.yaml when cfgFile is empty, overlays environment
// variables prefixed RCAGENT_, and validates the result. Fatal validation
// errors block startup; warnings are logged and the clamped value is kept.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RCAGENT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save writes cfg to the platform default config path.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg to cfgFile, or the platform default path when empty.
func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("device_id", cfg.DeviceID)
	viper.Set("device_token", cfg.DeviceToken)
	viper.Set("server_url", cfg.ServerURL)
	viper.Set("control_topic_prefix", cfg.ControlTopicPrefix)
	viper.Set("media_topic_prefix", cfg.MediaTopicPrefix)
	viper.Set("capture_max_width", cfg.CaptureMaxWidth)
	viper.Set("capture_max_height", cfg.CaptureMaxHeight)
	viper.Set("frame_buffer_capacity", cfg.FrameBufferCapacity)
	viper.Set("primary_fps", cfg.PrimaryFPS)
	viper.Set("primary_bitrate_bps", cfg.PrimaryBitrateBps)
	viper.Set("fallback_fps", cfg.FallbackFPS)
	viper.Set("fallback_quality", cfg.FallbackQuality)
	viper.Set("heartbeat_interval_seconds", cfg.HeartbeatIntervalSeconds)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "agent.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (contains device_token)
	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for the agent.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "RCAgent", "data")
	case "darwin":
		return "/Library/Application Support/RCAgent/data"
	default:
		return "/var/lib/rc-agent"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "RCAgent")
	case "darwin":
		return "/Library/Application Support/RCAgent"
	default:
		return "/etc/rc-agent"
	}
}
