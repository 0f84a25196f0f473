// Package processors assembles the built-in capabilities into a registry.
package processors

import (
	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/processors/image"
	"github.com/vnykmshr/taskprocessor/pkg/processors/script"
)

// Default returns a registry with scale, compress, decompress and custom
// bound to their built-in capabilities.
func Default(logger *zap.Logger) *dispatch.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := dispatch.NewRegistry().WithLogger(logger)
	if err := image.Register(reg, image.Config{Logger: logger}); err != nil {
		panic(err)
	}
	if err := script.Register(reg, script.Config{Logger: logger}); err != nil {
		panic(err)
	}
	return reg
}
