package payload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ahrav/go-quorum/internal/domain"
)

// envelopeSchema is the minimal shape a candidate object must have to be
// treated as the batch payload.
const envelopeSchema = `{
  "type": "object",
  "required": ["assessments", "findings"],
  "properties": {
    "assessments": {"type": "object"},
    "findings": {"type": "array"},
    "dimension_notes": {"type": "object"}
  }
}`

var envelope = mustSchema(envelopeSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("payload: invalid envelope schema: %v", err))
	}
	return s
}

// ExtractPayload returns the first JSON object embedded in raw that satisfies
// the payload envelope. Every '{' or '[' position is tried as the start of a
// prefix decode, so prose before or after the object is tolerated.
func ExtractPayload(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &domain.ValidationError{Entity: "payload", Errors: []string{"empty output"}}
	}

	var lastErr error
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var candidate any
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&candidate); err != nil {
			lastErr = err
			continue
		}
		obj, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		if matchesEnvelope(obj) {
			return obj, nil
		}
	}

	verr := domain.NewValidationError("payload")
	if lastErr != nil {
		verr.AddError(fmt.Sprintf("%v: last decode error: %v", domain.ErrNoValidPayload, lastErr))
	} else {
		verr.AddError(domain.ErrNoValidPayload.Error())
	}
	return nil, verr
}

func matchesEnvelope(obj map[string]any) bool {
	res, err := envelope.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return false
	}
	return res.Valid()
}
