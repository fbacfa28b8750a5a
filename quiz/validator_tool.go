package quiz

import (
	"context"
	"fmt"

	"github.com/smallnest/researchchat/testparams"
)

// ValidatorTool lets a question writer check its JSON before answering.
type ValidatorTool struct {
	Type testparams.QuestionType
}

func (ValidatorTool) Name() string { return "question_validator" }

func (v ValidatorTool) Description() string {
	return fmt.Sprintf("Validates a JSON array of %s questions. Input: the JSON text.", v.Type)
}

func (v ValidatorTool) Call(_ context.Context, input string) (string, error) {
	qs, err := ParseQuestions(input, v.Type)
	if err != nil {
		return fmt.Sprintf("INVALID: %v", err), nil
	}
	return fmt.Sprintf("VALID: %d questions", len(qs)), nil
}
