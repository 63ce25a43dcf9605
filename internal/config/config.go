package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Raiff1982/TheAi-sub000/internal/journal"
	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// #region types
// Config is the full runtime configuration.
type Config struct {
	Seed    uint64        `yaml:"seed"`
	Backend string        `yaml:"backend" validate:"oneof=pure gonum"`
	Graph   GraphConfig   `yaml:"graph"`
	Engine  EngineConfig  `yaml:"engine"`
	Journal JournalConfig `yaml:"journal"`
	State   StateConfig   `yaml:"state"`
	Encoder EncoderConfig `yaml:"encoder"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type GraphConfig struct {
	NodeCount int `yaml:"node_count" validate:"gte=1"`
}

type EngineConfig struct {
	Dimension          int     `yaml:"dimension" validate:"gte=1"`
	EpsilonThreshold   float64 `yaml:"epsilon_threshold" validate:"gt=0,lt=1"`
	ContractionRatio   float64 `yaml:"contraction_ratio" validate:"gt=0,lt=1"`
	NoiseVariance      float64 `yaml:"noise_variance" validate:"gte=0"`
	HistoryWindow      int     `yaml:"history_window" validate:"gte=1"`
	ConvergenceWindow  int     `yaml:"convergence_window" validate:"gte=1,ltefield=HistoryWindow"`
	GlyphLength        int     `yaml:"glyph_length" validate:"gte=1"`
	AttractorTolerance float64 `yaml:"attractor_tolerance" validate:"gte=0"`
	InitScale          float64 `yaml:"init_scale" validate:"gte=0"`
	EncoderSeed        uint64  `yaml:"encoder_seed"`
}

type JournalConfig struct {
	Dir              string        `yaml:"dir" validate:"required"`
	HotRetention     int           `yaml:"hot_retention" validate:"gte=1"`
	CompressionLevel int           `yaml:"compression_level" validate:"min=1,max=9"`
	LockTimeout      time.Duration `yaml:"lock_timeout" validate:"gt=0"`
	Watch            bool          `yaml:"watch"`
}

// StateConfig enables SQLite identity snapshots when Path is set.
type StateConfig struct {
	Path string `yaml:"path"`
}

type EncoderConfig struct {
	Kind    string        `yaml:"kind" validate:"oneof=hash grpc"`
	Addr    string        `yaml:"addr" validate:"required_if=Kind grpc"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// #endregion types

// #region defaults
// Default returns the documented defaults.
func Default() Config {
	ec := tension.DefaultConfig()
	jc := journal.DefaultConfig("./cocoons")
	return Config{
		Seed:    42,
		Backend: "pure",
		Graph:   GraphConfig{NodeCount: 128},
		Engine: EngineConfig{
			Dimension:          ec.Dimension,
			EpsilonThreshold:   ec.EpsilonThreshold,
			ContractionRatio:   ec.ContractionRatio,
			NoiseVariance:      ec.NoiseVariance,
			HistoryWindow:      ec.HistoryWindow,
			ConvergenceWindow:  ec.ConvergenceWindow,
			GlyphLength:        ec.GlyphLength,
			AttractorTolerance: ec.AttractorTolerance,
		},
		Journal: JournalConfig{
			Dir:              jc.Dir,
			HotRetention:     jc.HotRetention,
			CompressionLevel: jc.CompressionLevel,
			LockTimeout:      jc.LockTimeout,
		},
		Encoder: EncoderConfig{Kind: "hash", Timeout: 2 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// #endregion defaults

// #region load
// Env variables that override file values.
const (
	EnvJournalDir = "CODETTE_JOURNAL_DIR"
	EnvStateDB    = "CODETTE_STATE_DB"
	EnvLogLevel   = "CODETTE_LOG_LEVEL"
)

// Load reads defaults, overlays the YAML file at path (if non-empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v, ok := lookup(EnvJournalDir); ok && v != "" {
		cfg.Journal.Dir = v
	}
	if v, ok := lookup(EnvStateDB); ok {
		cfg.State.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion load

// #region validate
// ValidationError lists every invalid field, named by its YAML path.
type ValidationError struct {
	Fields   []string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its declared rule.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		out.Fields = append(out.Fields, field)
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Problems = append(out.Problems, fmt.Sprintf("%s: %v violates %s", field, fe.Value(), rule))
	}
	return out
}

// #endregion validate

// #region conversions
// TensionConfig converts the engine section.
func (c Config) TensionConfig() tension.Config {
	e := c.Engine
	return tension.Config{
		Dimension:          e.Dimension,
		EpsilonThreshold:   e.EpsilonThreshold,
		ContractionRatio:   e.ContractionRatio,
		NoiseVariance:      e.NoiseVariance,
		HistoryWindow:      e.HistoryWindow,
		ConvergenceWindow:  e.ConvergenceWindow,
		GlyphLength:        e.GlyphLength,
		AttractorTolerance: e.AttractorTolerance,
		InitScale:          e.InitScale,
	}
}

// JournalConfig converts the journal section. Logger, registerer and hub are
// left for the caller to wire.
func (c Config) JournalConfig() journal.Config {
	j := c.Journal
	return journal.Config{
		Dir:              j.Dir,
		HotRetention:     j.HotRetention,
		CompressionLevel: j.CompressionLevel,
		LockTimeout:      j.LockTimeout,
	}
}

// #endregion conversions
