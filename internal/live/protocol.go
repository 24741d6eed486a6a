package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pwmlive/pwmlive/pkg/audio"
)

// ── Outbound messages ─────────────────────────────────────────────────────────
//
// Outbound messages use the snake_case field names of the BidiGenerateContent
// WebSocket protocol.

type setupMessage struct {
	Setup Setup `json:"setup"`
}

// Setup is the session-configuration handshake sent once, before any audio.
type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generation_config"`
	SystemInstruction *Content         `json:"system_instruction,omitempty"`
	Tools             []Tool           `json:"tools,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *SpeechConfig `json:"speech_config,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voice_config"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

// Content carries plain-text parts, used for the system instruction.
type Content struct {
	Parts []TextPart `json:"parts"`
}

type TextPart struct {
	Text string `json:"text"`
}

// Tool groups the function declarations offered to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"function_declarations"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded little-endian PCM16
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"tool_response"`
}

type toolResponse struct {
	FunctionResponses []FunctionResponse `json:"function_responses"`
}

// FunctionResponse answers one [FunctionCall]. Response always has the
// shape {"result": value}.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// NewSetup builds the handshake for cfg. Empty optional fields are omitted.
func NewSetup(cfg Config) Setup {
	s := Setup{
		Model: cfg.Model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: cfg.ResponseModalities,
		},
	}
	if cfg.Voice != "" {
		s.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{
				PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Instructions != "" {
		s.SystemInstruction = &Content{Parts: []TextPart{{Text: cfg.Instructions}}}
	}
	if len(cfg.Tools) > 0 {
		s.Tools = []Tool{{FunctionDeclarations: cfg.Tools}}
	}
	return s
}

func encodeSetup(s Setup) ([]byte, error) {
	data, err := json.Marshal(setupMessage{Setup: s})
	if err != nil {
		return nil, fmt.Errorf("live: marshal setup: %w", err)
	}
	return data, nil
}

func encodeAudioFrame(frame []int16, mimeType string) ([]byte, error) {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MIMEType: mimeType, Data: audio.EncodeFrame(frame)}},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("live: marshal audio frame: %w", err)
	}
	return data, nil
}

func encodeToolResponse(responses []FunctionResponse) ([]byte, error) {
	data, err := json.Marshal(toolResponseMessage{
		ToolResponse: toolResponse{FunctionResponses: responses},
	})
	if err != nil {
		return nil, fmt.Errorf("live: marshal tool response: %w", err)
	}
	return data, nil
}

// ── Inbound messages ──────────────────────────────────────────────────────────
//
// The server answers in camelCase.

type serverMessage struct {
	SetupComplete        *json.RawMessage      `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCallMsg          `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
	GoAway               *goAwayMsg            `json:"goAway"`
	Error                *serverError          `json:"error"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn"`
	TurnComplete bool       `json:"turnComplete"`
	Interrupted  bool       `json:"interrupted"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolCallMsg struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

type goAwayMsg struct {
	TimeLeft string `json:"timeLeft"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Inbound is a decoded server message. It is one of [SetupComplete],
// [ServerContent], [ToolCall], [ToolCallCancellation], [GoAway],
// [ServerError] or [Unrecognized].
type Inbound interface {
	inbound()
}

// SetupComplete acknowledges the setup handshake.
type SetupComplete struct{}

// ServerContent carries model output. Audio holds the inline PCM parts in
// the order they arrived; other parts are ignored.
type ServerContent struct {
	Audio        []AudioPart
	TurnComplete bool
	Interrupted  bool
}

// AudioPart is one base64 PCM16 chunk with its MIME type, e.g.
// "audio/pcm;rate=24000".
type AudioPart struct {
	MIMEType string
	Data     string
}

// FunctionCall is a remote tool invocation. Args is never nil.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolCall is a batch of function calls that must be answered together.
type ToolCall struct {
	Calls []FunctionCall
}

// ToolCallCancellation lists call ids the server no longer needs.
type ToolCallCancellation struct {
	IDs []string
}

// GoAway announces that the server will close the connection soon.
type GoAway struct {
	TimeLeft string
}

// ServerError is an error reported by the remote service.
type ServerError struct {
	Code    int
	Message string
	Status  string
}

// Error implements error.
func (e ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Code, e.Status, msg)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, msg)
}

// Unrecognized is a well-formed JSON message matching no known shape. It is
// ignored.
type Unrecognized struct {
	Raw []byte
}

func (SetupComplete) inbound()        {}
func (ServerContent) inbound()        {}
func (ToolCall) inbound()             {}
func (ToolCallCancellation) inbound() {}
func (GoAway) inbound()               {}
func (ServerError) inbound()          {}
func (Unrecognized) inbound()         {}

// DecodeInbound parses one server payload. Invalid JSON returns an error
// wrapping [ErrDecode]; valid JSON of an unknown shape returns
// [Unrecognized]. When a payload carries more than one known field, server
// errors win, then setupComplete, serverContent, toolCall,
// toolCallCancellation and goAway.
func DecodeInbound(data []byte) (Inbound, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	switch {
	case msg.Error != nil:
		return ServerError{Code: msg.Error.Code, Message: msg.Error.Message, Status: msg.Error.Status}, nil
	case msg.SetupComplete != nil:
		return SetupComplete{}, nil
	case msg.ServerContent != nil:
		return decodeServerContent(msg.ServerContent), nil
	case msg.ToolCall != nil:
		calls := msg.ToolCall.FunctionCalls
		for i := range calls {
			if calls[i].Args == nil {
				calls[i].Args = map[string]any{}
			}
		}
		return ToolCall{Calls: calls}, nil
	case msg.ToolCallCancellation != nil:
		return ToolCallCancellation{IDs: msg.ToolCallCancellation.IDs}, nil
	case msg.GoAway != nil:
		return GoAway{TimeLeft: msg.GoAway.TimeLeft}, nil
	default:
		return Unrecognized{Raw: data}, nil
	}
}

func decodeServerContent(sc *serverContent) ServerContent {
	out := ServerContent{TurnComplete: sc.TurnComplete, Interrupted: sc.Interrupted}
	if sc.ModelTurn == nil {
		return out
	}
	for _, p := range sc.ModelTurn.Parts {
		if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") {
			continue
		}
		out.Audio = append(out.Audio, AudioPart{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
	}
	return out
}
