//go:build !darwin

package permissions

import "context"

// RequestMicrophone is a no-op on platforms without an OS-level microphone
// prompt; opening the device is the only access check there.
func RequestMicrophone(ctx context.Context) error {
	return ctx.Err()
}
