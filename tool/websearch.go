package tool

import (
	"github.com/tmc/langchaingo/tools"
)

// WebSearch returns the first search backend that has an API key: Serper,
// then Brave. It returns ErrMissingAPIKey when neither is configured.
func WebSearch(serperKey, braveKey string) (tools.Tool, error) {
	if s, err := NewSerperSearch(serperKey); err == nil {
		return s, nil
	}
	b, err := NewBraveSearch(braveKey)
	if err != nil {
		return nil, err
	}
	return b, nil
}
