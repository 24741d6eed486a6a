package board

import "github.com/pwmlive/pwmlive/internal/live"

// Capabilities returns the function declarations advertised to the model in
// the session setup. Every name is handled by [Board.HandleToolCall].
func Capabilities() []live.FunctionDeclaration {
	return []live.FunctionDeclaration{
		{
			Name:        ToolSetBlinking,
			Description: "Turn blinking on or off",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"enabled": map[string]any{"type": "boolean"},
				},
				"required": []string{"enabled"},
			},
		},
		{
			Name:        ToolSetBrightness,
			Description: "Set the brightness of the LED (0-10)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"level": map[string]any{"type": "number"},
				},
				"required": []string{"level"},
			},
		},
		{
			Name:        ToolSetInterval,
			Description: "Set the blinking interval in milliseconds",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ms": map[string]any{"type": "number"},
				},
				"required": []string{"ms"},
			},
		},
		{
			Name:        ToolGetStatus,
			Description: "Get the current status of the Arduino",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
