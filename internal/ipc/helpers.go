package ipc

import (
	"context"
	"errors"

	"github.com/mcp-scooter/mcpgate/internal/registry"
)

func connBackgroundContext() context.Context {
	return context.Background()
}

func asToolError(err error, target **registry.ToolError) bool {
	return errors.As(err, target)
}
