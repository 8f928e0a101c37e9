package agentgateway

import (
	"encoding/json"
	"fmt"
)

// Unmarshal decodes a Result's typed structured output into target. Callers
// never inspect result.Data directly; this keeps the json.RawMessage boundary
// in one place.
func Unmarshal(result *Result, target any) error {
	if result == nil || len(result.Data) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(result.Data, target); err != nil {
		return fmt.Errorf("agentgateway: decoding structured output: %w", err)
	}
	return nil
}
