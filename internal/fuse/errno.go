package fuse

import (
	"context"
	stderrors "errors"

	"github.com/objectfs/snapfs/pkg/errors"
)

// errClass groups errors by the POSIX error they surface as. Each FUSE
// implementation maps a class onto its own errno constants.
type errClass int

const (
	classOK errClass = iota
	classNotExist
	classNotDir
	classIsDir
	classReadOnly
	classInvalid
	classNotSupported
	classInterrupted
	classIO
)

func classify(err error) errClass {
	if err == nil {
		return classOK
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return classInterrupted
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound, errors.ErrCodeObjectNotFound:
		return classNotExist
	case errors.ErrCodeWrongType:
		var e *errors.SnapFSError
		if stderrors.As(err, &e) && e.Details["is_dir"] == true {
			return classIsDir
		}
		return classNotDir
	case errors.ErrCodeForbidden:
		return classReadOnly
	case errors.ErrCodeInvalidSeek:
		return classInvalid
	case errors.ErrCodeNotImplemented:
		return classNotSupported
	default:
		return classIO
	}
}
