package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/ironsheep/ocr-server/internal/imaging"
	"github.com/ironsheep/ocr-server/internal/ocr"
)

// Config holds ocr-server configuration.
// Loaded from: ./config.yaml or $HOME/.ocr-server/config.yaml
type Config struct {
	Server     ServerCfg     `mapstructure:"server" yaml:"server"`
	Log        LogCfg        `mapstructure:"log" yaml:"log"`
	Engines    EnginesCfg    `mapstructure:"engines" yaml:"engines"`
	Inference  InferenceCfg  `mapstructure:"inference" yaml:"inference"`
	Preprocess PreprocessCfg `mapstructure:"preprocess" yaml:"preprocess"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`       // Upload size limit
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"` // Graceful shutdown budget
}

// LogCfg configures structured logging.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// EnginesCfg holds the two engine profiles.
type EnginesCfg struct {
	Default   EngineCfg `mapstructure:"default" yaml:"default"`
	Alternate EngineCfg `mapstructure:"alternate" yaml:"alternate"`

	// InitRetryInterval is how long a failed alternate engine stays failed
	// before a request retries it.
	InitRetryInterval time.Duration `mapstructure:"init_retry_interval" yaml:"init_retry_interval"`
}

// EngineCfg configures one OCR engine.
type EngineCfg struct {
	Backend        string        `mapstructure:"backend" yaml:"backend"` // "paddle" or "tesseract"
	URL            string        `mapstructure:"url" yaml:"url"`         // Paddle serving base URL
	Language       string        `mapstructure:"language" yaml:"language"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	TessdataPrefix string        `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix"`
	SortByPosition bool          `mapstructure:"sort_by_position" yaml:"sort_by_position"`
}

// InferenceCfg holds detection and recognition tuning passed to every call.
type InferenceCfg struct {
	UseTextlineOrientation    bool    `mapstructure:"use_textline_orientation" yaml:"use_textline_orientation"`
	UseDocOrientationClassify bool    `mapstructure:"use_doc_orientation_classify" yaml:"use_doc_orientation_classify"`
	UseDocUnwarping           bool    `mapstructure:"use_doc_unwarping" yaml:"use_doc_unwarping"`
	TextDetThresh             float64 `mapstructure:"text_det_thresh" yaml:"text_det_thresh"`
	TextDetBoxThresh          float64 `mapstructure:"text_det_box_thresh" yaml:"text_det_box_thresh"`
	TextRecScoreThresh        float64 `mapstructure:"text_rec_score_thresh" yaml:"text_rec_score_thresh"`
	TextDetLimitSideLen       int     `mapstructure:"text_det_limit_side_len" yaml:"text_det_limit_side_len"`
	TextDetLimitType          string  `mapstructure:"text_det_limit_type" yaml:"text_det_limit_type"`
	TextDetUnclipRatio        float64 `mapstructure:"text_det_unclip_ratio" yaml:"text_det_unclip_ratio"`
}

// PreprocessCfg configures the optional image preprocessing stage.
type PreprocessCfg struct {
	Enabled  bool    `mapstructure:"enabled" yaml:"enabled"`
	MinSide  int     `mapstructure:"min_side" yaml:"min_side"` // Upscale below this short side
	Contrast float64 `mapstructure:"contrast" yaml:"contrast"` // -1..1, 0 disables
	Sharpen  bool    `mapstructure:"sharpen" yaml:"sharpen"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	params := ocr.DefaultParams()
	return &Config{
		Server: ServerCfg{
			Host:            "127.0.0.1",
			Port:            8000,
			MaxUploadMB:     32,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
		Engines: EnginesCfg{
			Default: EngineCfg{
				Backend:      ocr.BackendPaddle,
				URL:          ocr.DefaultPaddleURL,
				Language:     "japan",
				Timeout:      120 * time.Second,
				ReadyTimeout: 30 * time.Second,
			},
			Alternate: EngineCfg{
				Backend:        ocr.BackendPaddle,
				URL:            "http://127.0.0.1:8081",
				Language:       "ch",
				Timeout:        120 * time.Second,
				ReadyTimeout:   30 * time.Second,
				SortByPosition: true,
			},
			InitRetryInterval: ocr.DefaultInitRetryInterval,
		},
		Inference: InferenceCfg{
			UseTextlineOrientation:    params.UseTextlineOrientation,
			UseDocOrientationClassify: params.UseDocOrientationClassify,
			UseDocUnwarping:           params.UseDocUnwarping,
			TextDetThresh:             params.TextDetThresh,
			TextDetBoxThresh:          params.TextDetBoxThresh,
			TextRecScoreThresh:        params.TextRecScoreThresh,
			TextDetLimitSideLen:       params.TextDetLimitSideLen,
			TextDetLimitType:          params.TextDetLimitType,
			TextDetUnclipRatio:        params.TextDetUnclipRatio,
		},
		Preprocess: PreprocessCfg{
			Enabled: false,
			MinSide: imaging.DefaultMinSide,
		},
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive: %d", c.Server.MaxUploadMB)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json: %q", c.Log.Format)
	}
	for name, e := range map[string]EngineCfg{"default": c.Engines.Default, "alternate": c.Engines.Alternate} {
		switch e.Backend {
		case ocr.BackendPaddle, ocr.BackendTesseract:
		default:
			return fmt.Errorf("engines.%s.backend unknown: %q", name, e.Backend)
		}
	}
	if c.Engines.InitRetryInterval < 0 {
		return fmt.Errorf("engines.init_retry_interval must not be negative: %v", c.Engines.InitRetryInterval)
	}
	switch c.Inference.TextDetLimitType {
	case "max", "min":
	default:
		return fmt.Errorf("inference.text_det_limit_type must be max or min: %q", c.Inference.TextDetLimitType)
	}
	if c.Preprocess.Contrast < -1 || c.Preprocess.Contrast > 1 {
		return fmt.Errorf("preprocess.contrast out of range: %v", c.Preprocess.Contrast)
	}
	return nil
}

// Addr returns the listen address.
func (c ServerCfg) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes returns the upload limit in bytes.
func (c ServerCfg) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// SlogLevel parses the configured level.
func (c LogCfg) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Profile converts an engine section to an ocr.Profile.
func (e EngineCfg) Profile() ocr.Profile {
	return ocr.Profile{
		Backend:        e.Backend,
		URL:            e.URL,
		Language:       e.Language,
		Timeout:        e.Timeout,
		ReadyTimeout:   e.ReadyTimeout,
		TessdataPrefix: e.TessdataPrefix,
		SortByPosition: e.SortByPosition,
	}
}

// Params converts the inference section to ocr.Params.
func (i InferenceCfg) Params() ocr.Params {
	return ocr.Params{
		UseTextlineOrientation:    i.UseTextlineOrientation,
		UseDocOrientationClassify: i.UseDocOrientationClassify,
		UseDocUnwarping:           i.UseDocUnwarping,
		TextDetThresh:             i.TextDetThresh,
		TextDetBoxThresh:          i.TextDetBoxThresh,
		TextRecScoreThresh:        i.TextRecScoreThresh,
		TextDetLimitSideLen:       i.TextDetLimitSideLen,
		TextDetLimitType:          i.TextDetLimitType,
		TextDetUnclipRatio:        i.TextDetUnclipRatio,
	}
}

// Preprocessor converts the preprocess section to an imaging.Preprocessor.
func (p PreprocessCfg) Preprocessor() imaging.Preprocessor {
	return imaging.Preprocessor{
		Enabled:  p.Enabled,
		MinSide:  p.MinSide,
		Contrast: p.Contrast,
		Sharpen:  p.Sharpen,
	}
}
