package engine

import (
	"time"

	"github.com/rhuss/weiche/pkg/api"
)

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	DefaultModel string

	// TurnTimeout bounds a whole turn, tool calls included. Zero means no
	// deadline beyond the request context.
	TurnTimeout time.Duration

	// Validation limits applied to every request.
	Validation api.ValidationConfig
}
