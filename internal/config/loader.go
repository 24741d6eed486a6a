package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pwmlive/pwmlive/internal/live"
	"github.com/pwmlive/pwmlive/pkg/audio"
	"github.com/pwmlive/pwmlive/pkg/audio/portaudio"
)

// Board and MQTT defaults.
const (
	DefaultTopicPrefix    = "pwmlive/board"
	DefaultIntervalMS     = 500
	DefaultClientID       = "pwmlive"
	DefaultConnectTimeout = 10 * time.Second
)

// ValidBackendNames lists the audio backends that ship with pwmlive.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{BackendPortAudio, BackendNone}

// validate is the shared struct validator. Field names in its errors are the
// YAML keys.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default. The API key
// is taken from the GEMINI_API_KEY environment variable when unset.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	l := &cfg.Live
	if l.APIKey == "" {
		l.APIKey = os.Getenv(APIKeyEnv)
	}
	if l.BaseURL == "" {
		l.BaseURL = live.DefaultBaseURL
	}
	if l.APIVersion == "" {
		l.APIVersion = live.DefaultAPIVersion
	}
	if l.Model == "" {
		l.Model = live.DefaultModel
	}
	if l.Voice == "" {
		l.Voice = live.DefaultVoice
	}
	if len(l.ResponseModalities) == 0 {
		l.ResponseModalities = []string{"AUDIO"}
	}
	if l.KeepaliveInterval == 0 {
		l.KeepaliveInterval = live.DefaultKeepaliveInterval
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = BackendPortAudio
	}
	if a.InputSampleRate == 0 {
		a.InputSampleRate = live.DefaultSampleRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = live.DefaultSampleRate
	}
	if a.FrameSize == 0 {
		a.FrameSize = audio.DefaultFrameSize
	}
	if a.VolumeInterval == 0 {
		a.VolumeInterval = audio.DefaultMeterInterval
	}
	if a.VolumeGain == 0 {
		a.VolumeGain = audio.DefaultMeterGain
	}
	if a.FramesPerBuffer == 0 {
		a.FramesPerBuffer = portaudio.DefaultFramesPerBuffer
	}

	b := &cfg.Board
	if b.Publisher == "" {
		b.Publisher = PublisherLog
	}
	if b.TopicPrefix == "" {
		b.TopicPrefix = DefaultTopicPrefix
	}
	if b.IntervalMS == 0 {
		b.IntervalMS = DefaultIntervalMS
	}
	if b.MQTT.ClientID == "" {
		b.MQTT.ClientID = DefaultClientID
	}
	if b.MQTT.ConnectTimeout == 0 {
		b.MQTT.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				errs = append(errs, fmt.Errorf("%s %s", fieldPath(e), validationMessage(e)))
			}
		} else {
			errs = append(errs, err)
		}
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Live
	if cfg.Live.APIKey == "" {
		errs = append(errs, fmt.Errorf("live.api_key is required (or set %s)", APIKeyEnv))
	}
	if cfg.Live.Model != "" && !strings.HasPrefix(cfg.Live.Model, "models/") {
		slog.Warn("live.model does not start with \"models/\"; the service may reject it", "model", cfg.Live.Model)
	}

	// Audio
	validateBackendName(cfg.Audio.Backend)
	if cfg.Audio.VolumeInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.volume_interval %s must not be negative", cfg.Audio.VolumeInterval))
	}

	// Board
	if cfg.Board.Publisher == PublisherMQTT && cfg.Board.MQTT.Broker == "" {
		errs = append(errs, errors.New("board.mqtt.broker is required when board.publisher is mqtt"))
	}
	if cfg.Board.MQTT.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("board.mqtt.connect_timeout %s must not be negative", cfg.Board.MQTT.ConnectTimeout))
	}

	return errors.Join(errs...)
}

// fieldPath turns a validator namespace such as "Config.board.mqtt.qos" into
// the YAML path "board.mqtt.qos".
func fieldPath(e validator.FieldError) string {
	_, path, found := strings.Cut(e.Namespace(), ".")
	if !found {
		return e.Field()
	}
	return path
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "url":
		return fmt.Sprintf("%q must be a valid URL", e.Value())
	case "hostname_port":
		return fmt.Sprintf("%q must be a host:port address", e.Value())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", e.Value(), e.Param())
	default:
		return fmt.Sprintf("failed validation %q", e.Tag())
	}
}

// validateBackendName logs a warning if name is not one of
// [ValidBackendNames]. Third-party backends may still be registered.
func validateBackendName(name string) {
	if name == "" || slices.Contains(ValidBackendNames, name) {
		return
	}
	slog.Warn("unknown audio backend; it must be registered before startup",
		"name", name,
		"known", ValidBackendNames,
	)
}
