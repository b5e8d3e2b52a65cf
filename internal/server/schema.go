package server

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

// askSchema is the wire contract for POST /api/chat/ask. Length limits are
// enforced by the service so they report the configured bounds.
var askSchema = gojsonschema.NewGoLoader(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question": map[string]any{"type": "string"},
	},
	"required":             []string{"question"},
	"additionalProperties": false,
})

// validateAsk checks body against askSchema.
func validateAsk(body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return cerrors.ValidationError("Request body is required.")
	}
	result, err := gojsonschema.Validate(askSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return cerrors.ValidationError("Request body must be valid JSON.")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return cerrors.ValidationError("Invalid request: " + strings.Join(msgs, "; "))
}
