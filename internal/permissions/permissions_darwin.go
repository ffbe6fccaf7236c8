//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Foundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

// Blocks until the user answers the system prompt.
int requestMicrophonePermission() {
    __block BOOL result = NO;
    dispatch_semaphore_t sema = dispatch_semaphore_create(0);
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {
        result = granted;
        dispatch_semaphore_signal(sema);
    }];
    dispatch_semaphore_wait(sema, DISPATCH_TIME_FOREVER);
    return result ? 1 : 0;
}
*/
import "C"

import "context"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone resolves microphone access, prompting the user when the
// status has not been determined yet. It returns ErrMicrophoneDenied when
// access is refused or restricted.
func RequestMicrophone(ctx context.Context) error {
	switch CheckMicrophone() {
	case PermissionAuthorized:
		return nil
	case PermissionDenied, PermissionRestricted:
		return ErrMicrophoneDenied
	}

	granted := make(chan bool, 1)
	go func() {
		granted <- C.requestMicrophonePermission() == 1
	}()

	select {
	case ok := <-granted:
		if !ok {
			return ErrMicrophoneDenied
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
