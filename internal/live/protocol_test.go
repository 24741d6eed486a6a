package live_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/pwmlive/pwmlive/internal/live"
)

func TestDecodeInbound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want live.Inbound
	}{
		{
			name: "setup complete",
			in:   `{"setupComplete":{}}`,
			want: live.SetupComplete{},
		},
		{
			name: "audio parts keep order and skip non-audio",
			in: `{"serverContent":{"modelTurn":{"parts":[
				{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}},
				{"text":"hello"},
				{"inlineData":{"mimeType":"image/png","data":"xx"}},
				{"inlineData":{"mimeType":"audio/pcm","data":"AQI="}}
			]},"turnComplete":true}}`,
			want: live.ServerContent{
				Audio: []live.AudioPart{
					{MIMEType: "audio/pcm;rate=24000", Data: "AAA="},
					{MIMEType: "audio/pcm", Data: "AQI="},
				},
				TurnComplete: true,
			},
		},
		{
			name: "interrupted without model turn",
			in:   `{"serverContent":{"interrupted":true}}`,
			want: live.ServerContent{Interrupted: true},
		},
		{
			name: "tool call with missing args",
			in:   `{"toolCall":{"functionCalls":[{"id":"a","name":"get_status"},{"id":"b","name":"set_blinking","args":{"enabled":true}}]}}`,
			want: live.ToolCall{Calls: []live.FunctionCall{
				{ID: "a", Name: "get_status", Args: map[string]any{}},
				{ID: "b", Name: "set_blinking", Args: map[string]any{"enabled": true}},
			}},
		},
		{
			name: "tool call without calls",
			in:   `{"toolCall":{}}`,
			want: live.ToolCall{},
		},
		{
			name: "cancellation",
			in:   `{"toolCallCancellation":{"ids":["a","b"]}}`,
			want: live.ToolCallCancellation{IDs: []string{"a", "b"}},
		},
		{
			name: "go away",
			in:   `{"goAway":{"timeLeft":"10s"}}`,
			want: live.GoAway{TimeLeft: "10s"},
		},
		{
			name: "server error wins over content",
			in:   `{"error":{"code":400,"message":"bad setup","status":"INVALID_ARGUMENT"},"serverContent":{}}`,
			want: live.ServerError{Code: 400, Message: "bad setup", Status: "INVALID_ARGUMENT"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := live.DecodeInbound([]byte(tc.in))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DecodeInbound = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeInbound_Unrecognized(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`{}`, `{"usageMetadata":{"totalTokenCount":3}}`, `null`} {
		got, err := live.DecodeInbound([]byte(in))
		if err != nil {
			t.Errorf("DecodeInbound(%s): %v", in, err)
			continue
		}
		if _, ok := got.(live.Unrecognized); !ok {
			t.Errorf("DecodeInbound(%s) = %T, want Unrecognized", in, got)
		}
	}
}

func TestDecodeInbound_InvalidJSON(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`not json`, `{"serverContent":`, `[1,2]`, `"text"`, ``} {
		_, err := live.DecodeInbound([]byte(in))
		if !errors.Is(err, live.ErrDecode) {
			t.Errorf("DecodeInbound(%q) err = %v, want ErrDecode", in, err)
		}
	}
}

func TestServerError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  live.ServerError
		want string
	}{
		{live.ServerError{Code: 400, Message: "bad", Status: "INVALID_ARGUMENT"}, "server error 400 (INVALID_ARGUMENT): bad"},
		{live.ServerError{Code: 500}, "server error 500: unknown error"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestNewSetup_WireShape(t *testing.T) {
	t.Parallel()

	setup := live.NewSetup(live.Config{
		Model:              "models/test",
		Voice:              "Charon",
		Instructions:       "be brief",
		ResponseModalities: []string{"AUDIO"},
		Tools: []live.FunctionDeclaration{{
			Name:        "set_blinking",
			Description: "Turn blinking on or off",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"enabled": map[string]any{"type": "boolean"}},
				"required":   []string{"enabled"},
			},
		}},
	})

	data, err := json.Marshal(map[string]any{"setup": setup})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	s := raw["setup"].(map[string]any)
	if s["model"] != "models/test" {
		t.Errorf("model = %v", s["model"])
	}
	gen := s["generation_config"].(map[string]any)
	if mods := gen["response_modalities"].([]any); len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("response_modalities = %v", mods)
	}
	voice := gen["speech_config"].(map[string]any)["voice_config"].(map[string]any)["prebuilt_voice_config"].(map[string]any)["voice_name"]
	if voice != "Charon" {
		t.Errorf("voice_name = %v, want Charon", voice)
	}
	instr := s["system_instruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"]
	if instr != "be brief" {
		t.Errorf("system_instruction text = %v", instr)
	}
	decls := s["tools"].([]any)[0].(map[string]any)["function_declarations"].([]any)
	if len(decls) != 1 || decls[0].(map[string]any)["name"] != "set_blinking" {
		t.Errorf("function_declarations = %v", decls)
	}
}

func TestNewSetup_OmitsEmptyOptionals(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(live.NewSetup(live.Config{Model: "m", ResponseModalities: []string{"AUDIO"}}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"system_instruction", "tools"} {
		if _, ok := raw[key]; ok {
			t.Errorf("%s present, want omitted", key)
		}
	}
	if _, ok := raw["generation_config"].(map[string]any)["speech_config"]; ok {
		t.Error("speech_config present without a voice")
	}
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		base, version, apiKey string
		want                  string
	}{
		{
			name:   "defaults",
			apiKey: "abc",
			want:   "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent?key=abc",
		},
		{
			name:    "custom base with trailing slash",
			base:    "ws://127.0.0.1:9000/",
			version: "v1beta",
			apiKey:  "k",
			want:    "ws://127.0.0.1:9000/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=k",
		},
		{
			name:   "key is escaped",
			apiKey: "a b&c",
			want:   "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent?key=a+b%26c",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := live.Endpoint(tc.base, tc.version, tc.apiKey); got != tc.want {
				t.Errorf("Endpoint = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	want := map[live.State]string{
		live.StateIdle:       "IDLE",
		live.StateConnecting: "CONNECTING",
		live.StateOpen:       "OPEN",
		live.StateClosed:     "CLOSED",
		live.State(42):       "UNKNOWN",
	}
	for s, name := range want {
		if got := s.String(); got != name {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, name)
		}
	}
}
