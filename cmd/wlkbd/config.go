package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	wl "deedles.dev/wlkbd/client"
	"deedles.dev/wlkbd/internal/icon"
	"deedles.dev/wlkbd/internal/logging"
	"deedles.dev/wlkbd/xkb"
	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// config is the fully resolved configuration of a run.
type config struct {
	Labels      string
	XKBRules    string
	Format      outputFormat
	IconDir     string
	IconSize    int
	BindTimeout time.Duration
	LogLevel    zapcore.Level
	LogFormat   logging.Format
}

func defaultLabelsPath() string {
	return filepath.Join(xdg.ConfigHome, "wlkbd", "map.json")
}

// addFlags adds every flag of the root command.
func addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "path to config file (overrides auto-discovery)")
	flags.String("labels", defaultLabelsPath(), "JSONC file mapping layout names to labels")
	flags.String("xkb-rules", xkb.DefaultRegistryPath, "XKB rules registry used to name layouts")
	flags.String("format", string(formatText), "output format: text|json")
	flags.String("icon-dir", "", "render label icons into this directory")
	flags.Int("icon-size", icon.DefaultSize, "icon size in pixels")
	flags.Duration("bind-timeout", wl.DefaultBindTimeout, "how long to wait for a seat with a keyboard")
	flags.String("log-level", "", "log level: debug|info|warn|error (default: info)")
	flags.String("log-format", string(logging.FormatAuto), "log format: auto|console|json")
	flags.BoolP("verbose", "v", false, "enable debug logging")
}

// bindViper wires the command's flags into v with the standard config
// file search order and WLKBD_* env var prefix.
//
// Precedence (lowest to highest): defaults, config file, WLKBD_* env
// vars, flags.
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("wlkbd")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "wlkbd"))
		for _, dir := range xdg.ConfigDirs {
			v.AddConfigPath(filepath.Join(dir, "wlkbd"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("WLKBD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// loadConfig resolves and validates the configuration held by v.
func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Labels:      v.GetString("labels"),
		XKBRules:    v.GetString("xkb-rules"),
		IconDir:     v.GetString("icon-dir"),
		IconSize:    v.GetInt("icon-size"),
		BindTimeout: v.GetDuration("bind-timeout"),
		LogFormat:   logging.ParseFormat(v.GetString("log-format")),
	}

	format, err := parseOutputFormat(v.GetString("format"))
	if err != nil {
		return cfg, err
	}
	cfg.Format = format

	if cfg.IconSize <= 0 {
		return cfg, fmt.Errorf("invalid icon size: %v", cfg.IconSize)
	}
	if cfg.BindTimeout <= 0 {
		return cfg, fmt.Errorf("invalid bind timeout: %v", cfg.BindTimeout)
	}

	level := v.GetString("log-level")
	switch {
	case level != "":
		cfg.LogLevel = logging.ParseLevel(level)
	case v.GetBool("verbose"):
		cfg.LogLevel = zapcore.DebugLevel
	default:
		cfg.LogLevel = zapcore.InfoLevel
	}

	return cfg, nil
}
