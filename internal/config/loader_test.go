package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pwmlive/pwmlive/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: bananas\n",
			want: []string{`server.log_level "bananas" is invalid`},
		},
		{
			name: "admin addr without port",
			yaml: "server:\n  admin_addr: localhost\n",
			want: []string{"server.admin_addr", "host:port"},
		},
		{
			name: "base url not a url",
			yaml: "live:\n  base_url: not a url\n",
			want: []string{"live.base_url", "valid URL"},
		},
		{
			name: "unknown modality",
			yaml: "live:\n  response_modalities: [AUDIO, VIDEO]\n",
			want: []string{"live.response_modalities[1]", `"VIDEO" must be one of: AUDIO TEXT`},
		},
		{
			name: "sample rate too low",
			yaml: "audio:\n  input_sample_rate: 4000\n",
			want: []string{"audio.input_sample_rate must be greater than or equal to 8000"},
		},
		{
			name: "frame size too large",
			yaml: "audio:\n  frame_size: 100000\n",
			want: []string{"audio.frame_size must be less than or equal to 65536"},
		},
		{
			name: "negative volume interval",
			yaml: "audio:\n  volume_interval: -1s\n",
			want: []string{"audio.volume_interval -1s must not be negative"},
		},
		{
			name: "brightness out of range",
			yaml: "board:\n  brightness: 11\n",
			want: []string{"board.brightness must be less than or equal to 10"},
		},
		{
			name: "unknown publisher",
			yaml: "board:\n  publisher: kafka\n",
			want: []string{"board.publisher", `"kafka" must be one of: mqtt log`},
		},
		{
			name: "mqtt without broker",
			yaml: "board:\n  publisher: mqtt\n",
			want: []string{"board.mqtt.broker is required when board.publisher is mqtt"},
		},
		{
			name: "qos out of range",
			yaml: "board:\n  mqtt:\n    qos: 3\n",
			want: []string{"board.mqtt.qos must be less than or equal to 2"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader("live:\n  api_key: k\n" + stripLive(tc.yaml)))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not contain %q", err, w)
				}
			}
		})
	}
}

// stripLive merges a "live:" block from a test case into the api_key block
// that every case is prefixed with.
func stripLive(yaml string) string {
	if rest, ok := strings.CutPrefix(yaml, "live:\n"); ok {
		return rest
	}
	return yaml
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
live:
  api_key: k
server:
  log_level: loud
board:
  brightness: -1
  mqtt:
    qos: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, w := range []string{"server.log_level", "board.brightness", "board.mqtt.qos"} {
		if !strings.Contains(err.Error(), w) {
			t.Errorf("error should mention %s, got: %v", w, err)
		}
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "")

	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "live.api_key is required") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), config.APIKeyEnv) {
		t.Errorf("error should name %s: %v", config.APIKeyEnv, err)
	}
}

func TestValidate_MQTTWithBroker(t *testing.T) {
	t.Parallel()

	yaml := `
live:
  api_key: k
board:
  publisher: mqtt
  mqtt:
    broker: "tcp://localhost:1883"
    qos: 2
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownBackendOnlyWarns(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("live:\n  api_key: k\naudio:\n  backend: jack\n"))
	if err != nil {
		t.Fatalf("unknown backend should not fail validation: %v", err)
	}
	if cfg.Audio.Backend != "jack" {
		t.Errorf("backend = %q, want jack", cfg.Audio.Backend)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("live:\n  api_key: k\n  temperature: 0.7\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestLoadFromReader_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("live: [unclosed"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "decode yaml") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pwmlive.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Board.MQTT.ClientID != "bench" {
		t.Errorf("client_id = %q, want bench", cfg.Board.MQTT.ClientID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}
