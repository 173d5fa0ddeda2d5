package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, with dots in keys
// replaced by underscores: OCR_SERVER_SERVER_PORT sets server.port.
const EnvPrefix = "OCR_SERVER"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// An empty cfgFile searches ./config.yaml and $HOME/.ocr-server/config.yaml;
// a missing file is not an error.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	setDefaults(cm.v, DefaultConfig())

	// Environment variables with OCR_SERVER_ prefix
	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.ocr-server")
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf key so that environment overrides reach
// Unmarshal even when no config file mentions the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	for name, e := range map[string]EngineCfg{"default": d.Engines.Default, "alternate": d.Engines.Alternate} {
		prefix := "engines." + name + "."
		v.SetDefault(prefix+"backend", e.Backend)
		v.SetDefault(prefix+"url", e.URL)
		v.SetDefault(prefix+"language", e.Language)
		v.SetDefault(prefix+"timeout", e.Timeout)
		v.SetDefault(prefix+"ready_timeout", e.ReadyTimeout)
		v.SetDefault(prefix+"tessdata_prefix", e.TessdataPrefix)
		v.SetDefault(prefix+"sort_by_position", e.SortByPosition)
	}
	v.SetDefault("engines.init_retry_interval", d.Engines.InitRetryInterval)

	v.SetDefault("inference.use_textline_orientation", d.Inference.UseTextlineOrientation)
	v.SetDefault("inference.use_doc_orientation_classify", d.Inference.UseDocOrientationClassify)
	v.SetDefault("inference.use_doc_unwarping", d.Inference.UseDocUnwarping)
	v.SetDefault("inference.text_det_thresh", d.Inference.TextDetThresh)
	v.SetDefault("inference.text_det_box_thresh", d.Inference.TextDetBoxThresh)
	v.SetDefault("inference.text_rec_score_thresh", d.Inference.TextRecScoreThresh)
	v.SetDefault("inference.text_det_limit_side_len", d.Inference.TextDetLimitSideLen)
	v.SetDefault("inference.text_det_limit_type", d.Inference.TextDetLimitType)
	v.SetDefault("inference.text_det_unclip_ratio", d.Inference.TextDetUnclipRatio)

	v.SetDefault("preprocess.enabled", d.Preprocess.Enabled)
	v.SetDefault("preprocess.min_side", d.Preprocess.MinSide)
	v.SetDefault("preprocess.contrast", d.Preprocess.Contrast)
	v.SetDefault("preprocess.sharpen", d.Preprocess.Sharpen)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, or "" if none.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// Returns false when there is no config file to watch.
//
// A reload that fails to parse or validate is ignored and the previous
// configuration stays in effect. onError, if non-nil, receives that error.
func (cm *Manager) WatchConfig(onError func(error)) bool {
	if cm.v.ConfigFileUsed() == "" {
		return false
	}

	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
	return true
}

// Marshal renders a configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
