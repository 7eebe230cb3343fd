package gopenslide

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrUnrecognized means no format claimed the file.
	ErrUnrecognized   = errors.New("unrecognized slide")
	ErrNegativeSize   = errors.New("negative size")
	ErrInvalidLevel   = errors.New("invalid level")
	ErrChannelCount   = errors.New("channel count mismatch")
	ErrBufferTooSmall = errors.New("destination buffer too small")
	ErrRegionTooLarge = errors.New("region too large")
	errUnknown        = errors.New("Unknown error")
)

// stickyError holds the first error recorded on a slide. Later errors are
// dropped.
type stickyError struct {
	p atomic.Pointer[error]
}

func (s *stickyError) set(err error) {
	if err == nil {
		return
	}
	s.p.CompareAndSwap(nil, &err)
}

func (s *stickyError) get() error {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return nil
}
