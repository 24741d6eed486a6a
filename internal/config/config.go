// Package config defines the configuration schema for pwmlive and provides
// helpers for loading, validating and watching it.
//
// The canonical format is YAML. Load a file with [Load]; for tests, use
// [LoadFromReader]. Both apply [ApplyDefaults] and run [Validate] before
// returning, so callers never see a half-filled or incoherent [Config].
package config

import "time"

// LogLevel controls the verbosity of the application logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Publisher names accepted in board.publisher.
const (
	PublisherMQTT = "mqtt"
	PublisherLog  = "log"
)

// Audio backend names accepted in audio.backend. BackendNone runs the session
// without any local devices.
const (
	BackendPortAudio = "portaudio"
	BackendNone      = "none"
)

// APIKeyEnv is consulted when live.api_key is empty.
const APIKeyEnv = "GEMINI_API_KEY"

// Config is the root configuration structure for pwmlive.
type Config struct {
	// Server holds process-level settings.
	Server ServerConfig `yaml:"server"`

	// Live configures the remote Gemini Live session.
	Live LiveConfig `yaml:"live"`

	// Audio selects the device backend and the audio pipeline parameters.
	Audio AudioConfig `yaml:"audio"`

	// Board configures the LED controller driven by tool calls.
	Board BoardConfig `yaml:"board"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel sets the minimum log level. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// AdminAddr is the listen address of the admin HTTP server that serves
	// /metrics, /healthz and /readyz (e.g. ":9090"). Empty disables it.
	AdminAddr string `yaml:"admin_addr" validate:"omitempty,hostname_port"`
}

// LiveConfig configures the remote session. Every field here requires a new
// session to take effect.
type LiveConfig struct {
	// APIKey authenticates against the service. Falls back to the
	// GEMINI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL is the WebSocket base URL of the service.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// APIVersion selects the API surface, e.g. "v1alpha".
	APIVersion string `yaml:"api_version" validate:"omitempty,max=32"`

	// Model is the fully qualified model name, e.g.
	// "models/gemini-2.5-flash-native-audio-preview-12-2025".
	Model string `yaml:"model"`

	// Voice is the prebuilt voice persona.
	Voice string `yaml:"voice"`

	// Instructions is sent as the system instruction. Optional.
	Instructions string `yaml:"instructions"`

	// ResponseModalities lists the requested reply modalities.
	ResponseModalities []string `yaml:"response_modalities" validate:"omitempty,dive,oneof=AUDIO TEXT"`

	// KeepaliveInterval is the WebSocket ping cadence. Negative disables pings.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// AudioConfig selects the device backend and pipeline parameters.
type AudioConfig struct {
	// Backend names the device backend ("portaudio" or "none").
	Backend string `yaml:"backend"`

	// InputSampleRate is the capture rate and the rate sent upstream.
	InputSampleRate int `yaml:"input_sample_rate" validate:"omitempty,gte=8000,lte=192000"`

	// OutputSampleRate is the playback device rate.
	OutputSampleRate int `yaml:"output_sample_rate" validate:"omitempty,gte=8000,lte=192000"`

	// FrameSize is the number of samples per outbound frame.
	FrameSize int `yaml:"frame_size" validate:"omitempty,gte=64,lte=65536"`

	// VolumeInterval is the cadence of volume telemetry.
	VolumeInterval time.Duration `yaml:"volume_interval"`

	// VolumeGain scales the RMS level before clamping to [0, 1].
	VolumeGain float64 `yaml:"volume_gain" validate:"gte=0,lte=100"`

	// FramesPerBuffer is the PortAudio callback block size.
	FramesPerBuffer int `yaml:"frames_per_buffer" validate:"gte=0,lte=65536"`
}

// BoardConfig configures the LED controller.
type BoardConfig struct {
	// Publisher names the command sink ("mqtt" or "log").
	Publisher string `yaml:"publisher" validate:"omitempty,oneof=mqtt log"`

	// TopicPrefix is prepended to every MQTT topic, e.g. "pwmlive/board".
	TopicPrefix string `yaml:"topic_prefix" validate:"omitempty,max=200"`

	// Brightness is the initial brightness, 0 to 10.
	Brightness int `yaml:"brightness" validate:"gte=0,lte=10"`

	// Blinking is the initial blinking state.
	Blinking bool `yaml:"blinking"`

	// IntervalMS is the initial blinking interval in milliseconds.
	IntervalMS int `yaml:"interval_ms" validate:"gte=0,lte=60000"`

	// MQTT configures the broker connection used by the "mqtt" publisher.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker" validate:"omitempty,url"`

	// ClientID identifies this client to the broker.
	ClientID string `yaml:"client_id" validate:"omitempty,max=128"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// QoS is the publish quality of service, 0 to 2.
	QoS byte `yaml:"qos" validate:"lte=2"`

	// ConnectTimeout bounds the initial connect and each publish.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}
