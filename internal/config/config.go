package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures jpdict's runtime settings.
type Config struct {
	PopupStyle  string
	DictLang    string
	ShowRomaji  bool
	ReadingOnly bool
	ToggleKey   string

	DataURL    string
	DataDir    string
	SocketPath string
	HTTPBind   string

	UpdateThreshold      time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	PollInterval         time.Duration

	LogLevel     string
	LogFormat    string
	ReleaseStage string
}

const (
	defaultConfigPath   = "~/.config/jpdict/config.toml"
	defaultDataDir      = "~/.local/share/jpdict"
	defaultPopupStyle   = "blue"
	defaultDictLang     = "en"
	defaultToggleKey    = "Alt+R"
	defaultDataURL      = "http://127.0.0.1:7490/"
	defaultHTTPBind     = "127.0.0.1:7491"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultReleaseStage = "production"
	defaultThreshold    = 12 * time.Hour
	defaultRetryInitial = 3 * time.Second
	defaultRetryMax     = 12 * time.Hour
	defaultPollInterval = time.Hour
	socketName          = "jpdict.sock"
	databaseName        = "kanji.db"
	storeName           = "state.toml"
	dictDirName         = "dict"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := mustExpand(defaultDataDir)
	return Config{
		PopupStyle:           defaultPopupStyle,
		DictLang:             defaultDictLang,
		ToggleKey:            defaultToggleKey,
		DataURL:              defaultDataURL,
		DataDir:              dataDir,
		SocketPath:           filepath.Join(dataDir, socketName),
		HTTPBind:             defaultHTTPBind,
		UpdateThreshold:      defaultThreshold,
		RetryInitialInterval: defaultRetryInitial,
		RetryMaxInterval:     defaultRetryMax,
		PollInterval:         defaultPollInterval,
		LogLevel:             defaultLogLevel,
		LogFormat:            defaultLogFormat,
		ReleaseStage:         defaultReleaseStage,
	}
}

type rawConfig struct {
	PopupStyle           string `toml:"popup_style"`
	DictLang             string `toml:"dict_lang"`
	ShowRomaji           bool   `toml:"show_romaji"`
	ReadingOnly          bool   `toml:"reading_only"`
	ToggleKey            string `toml:"toggle_key"`
	DataURL              string `toml:"data_url"`
	DataDir              string `toml:"data_dir"`
	SocketPath           string `toml:"socket_path"`
	HTTPBind             string `toml:"http_bind"`
	UpdateThreshold      string `toml:"update_threshold"`
	RetryInitialInterval string `toml:"retry_initial_interval"`
	RetryMaxInterval     string `toml:"retry_max_interval"`
	PollInterval         string `toml:"poll_interval"`
	LogLevel             string `toml:"log_level"`
	LogFormat            string `toml:"log_format"`
	ReleaseStage         string `toml:"release_stage"`
}

// Load locates and parses the config file, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes)
}

// Parse decodes TOML config content, applying defaults for empty fields.
func Parse(data []byte) (Config, error) {
	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	cfg.PopupStyle = orDefault(raw.PopupStyle, defaultPopupStyle)
	cfg.DictLang = orDefault(raw.DictLang, defaultDictLang)
	cfg.ShowRomaji = raw.ShowRomaji
	cfg.ReadingOnly = raw.ReadingOnly
	cfg.ToggleKey = orDefault(raw.ToggleKey, defaultToggleKey)
	cfg.DataURL = orDefault(raw.DataURL, defaultDataURL)
	cfg.HTTPBind = orDefault(raw.HTTPBind, defaultHTTPBind)
	cfg.LogLevel = strings.ToLower(orDefault(raw.LogLevel, defaultLogLevel))
	cfg.LogFormat = strings.ToLower(orDefault(raw.LogFormat, defaultLogFormat))
	cfg.ReleaseStage = orDefault(raw.ReleaseStage, defaultReleaseStage)

	cfg.DataDir = mustExpand(orDefault(raw.DataDir, defaultDataDir))
	if socket := strings.TrimSpace(raw.SocketPath); socket != "" {
		cfg.SocketPath = mustExpand(socket)
	} else {
		cfg.SocketPath = filepath.Join(cfg.DataDir, socketName)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"update_threshold", raw.UpdateThreshold, &cfg.UpdateThreshold},
		{"retry_initial_interval", raw.RetryInitialInterval, &cfg.RetryInitialInterval},
		{"retry_max_interval", raw.RetryMaxInterval, &cfg.RetryMaxInterval},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
	}
	for _, d := range durations {
		value := strings.TrimSpace(d.raw)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("parse config: %s must be positive", d.key)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// DatabasePath returns the sqlite file holding kanji data.
func (c Config) DatabasePath() string {
	return filepath.Join(c.dataDir(), databaseName)
}

// StorePath returns the persisted key-value store file.
func (c Config) StorePath() string {
	return filepath.Join(c.dataDir(), storeName)
}

// DictDir returns the directory holding the flat-file word and name dictionaries.
func (c Config) DictDir() string {
	return filepath.Join(c.dataDir(), dictDirName)
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.DataDir
}

// Diff returns the TOML keys whose values differ between a and b.
func Diff(a, b Config) []string {
	var changed []string
	check := func(key string, differs bool) {
		if differs {
			changed = append(changed, key)
		}
	}
	check("popup_style", a.PopupStyle != b.PopupStyle)
	check("dict_lang", a.DictLang != b.DictLang)
	check("show_romaji", a.ShowRomaji != b.ShowRomaji)
	check("reading_only", a.ReadingOnly != b.ReadingOnly)
	check("toggle_key", a.ToggleKey != b.ToggleKey)
	check("data_url", a.DataURL != b.DataURL)
	check("data_dir", a.DataDir != b.DataDir)
	check("socket_path", a.SocketPath != b.SocketPath)
	check("http_bind", a.HTTPBind != b.HTTPBind)
	check("update_threshold", a.UpdateThreshold != b.UpdateThreshold)
	check("retry_initial_interval", a.RetryInitialInterval != b.RetryInitialInterval)
	check("retry_max_interval", a.RetryMaxInterval != b.RetryMaxInterval)
	check("poll_interval", a.PollInterval != b.PollInterval)
	check("log_level", a.LogLevel != b.LogLevel)
	check("log_format", a.LogFormat != b.LogFormat)
	check("release_stage", a.ReleaseStage != b.ReleaseStage)
	return changed
}

func orDefault(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
