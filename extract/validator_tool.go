package extract

import (
	"context"
	"fmt"
)

// ValidatorTool lets an agent check its section JSON before answering.
type ValidatorTool struct{}

func (ValidatorTool) Name() string { return "json_validator" }

func (ValidatorTool) Description() string {
	return "Validates a JSON array of objects with string fields alt_baslik and aciklama. Input: the JSON text."
}

func (ValidatorTool) Call(_ context.Context, input string) (string, error) {
	sections, err := ParseSections(input)
	if err != nil {
		return fmt.Sprintf("INVALID: %v", err), nil
	}
	return fmt.Sprintf("VALID: %d sections", len(sections)), nil
}
