package permissions

import "errors"

// ErrMicrophoneDenied is returned when the user or the OS refuses microphone access
var ErrMicrophoneDenied = errors.New("microphone permission not granted")
