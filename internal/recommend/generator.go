// Package recommend turns titles and poll answers into movie recommendations
// produced by a text generation service.
package recommend

import (
	"context"
	"fmt"
)

// FallbackText is returned to poll clients when generation fails.
const FallbackText = "Ошибка при получении рекомендации от нейросети."

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ServiceError reports a failed call to the generation backend.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("recommend %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
