package pe

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds returned by the codec. Match them with errors.Is.
var (
	ErrNotEnoughData      = errors.New("not enough data")
	ErrNotEnoughSpace     = errors.New("not enough space")
	ErrInvalidImageFormat = errors.New("invalid image format")
)

// ErrDamagedImportTable is returned when a lookup table has no terminator
// within the entry limit. It is also an ErrInvalidImageFormat.
var ErrDamagedImportTable = errors.Wrap(ErrInvalidImageFormat,
	"damaged Import Table information. ILT and/or IAT appear to be broken")

// NotEnoughDataError reports a read that needed more bytes than remained.
type NotEnoughDataError struct {
	AttemptedRead int
}

func (e *NotEnoughDataError) Error() string {
	return fmt.Sprintf("not enough data: attempted to read %d bytes", e.AttemptedRead)
}

func (e *NotEnoughDataError) Is(target error) bool { return target == ErrNotEnoughData }

// NotEnoughSpaceError reports a write into a bounded sink that was too small.
type NotEnoughSpaceError struct {
	AttemptedWrite int
}

func (e *NotEnoughSpaceError) Error() string {
	return fmt.Sprintf("not enough space: attempted to write %d bytes", e.AttemptedWrite)
}

func (e *NotEnoughSpaceError) Is(target error) bool { return target == ErrNotEnoughSpace }

func notEnoughData(n int) error {
	return errors.WithStack(&NotEnoughDataError{AttemptedRead: n})
}

func notEnoughSpace(n int) error {
	return errors.WithStack(&NotEnoughSpaceError{AttemptedWrite: n})
}

func invalidFormat(msg string) error {
	return errors.Wrap(ErrInvalidImageFormat, msg)
}

func invalidFormatf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidImageFormat, format, args...)
}
