//go:build !windows

package hotkey

import (
	"context"
	"log/slog"

	"dictate/internal/keys"
)

// Listen is not supported on non-Windows builds.
func Listen(ctx context.Context, out chan<- keys.Event, log *slog.Logger) error {
	return ErrUnsupported
}
