package media

import (
	"fmt"
	"time"
)

// OpenError reports a failure to open a source. It is fatal to Open: no
// session is created.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// DecodeError reports a malformed frame or section. A single occurrence is
// recovered locally by skipping the frame; repeated consecutive occurrences
// escalate the session to its Error state.
type DecodeError struct {
	PTS time.Duration
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame at %s: %v", e.PTS, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UploadError reports a GPU-side failure (device lost, out of memory) during
// texture upload. The texture pool is invalidated when one occurs.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload frame: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
