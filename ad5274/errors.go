package ad5274

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCommand = errors.New("ad5274: invalid command")
	ErrInvalidDatum   = errors.New("ad5274: datum out of range")
	ErrTransport      = errors.New("ad5274: transport error")
	ErrVerifyMismatch = errors.New("ad5274: read back does not match written value")
	ErrNotImplemented = errors.New("ad5274: not implemented")

	ErrInvalidInterval = errors.New("ad5274: poll interval must be positive")
)

// Legacy signed codes, as printed by the bench firmware this driver replaces.
const (
	CodeBadCommand     = -100
	CodeBadLocation    = -101
	CodeNotImplemented = -90

	codeWriteBadDatum   = 0x10
	codeWriteBadCommand = 0x20
	codeErrorCountMask  = 0x0F
)

// ProtocolError describes a failed operation along three independent axes.
// InvalidCommand and InvalidDatum are caller errors detected before any bus
// activity; TransportErrors counts rejected bytes, short reads and nonzero
// transaction statuses.
type ProtocolError struct {
	Op              string
	Command         Command
	TransportErrors int
	InvalidCommand  bool
	InvalidDatum    bool
}

func (e *ProtocolError) Error() string {
	var reasons []string
	if e.InvalidCommand {
		reasons = append(reasons, "invalid command")
	}
	if e.InvalidDatum {
		reasons = append(reasons, "datum out of range")
	}
	if e.TransportErrors > 0 {
		reasons = append(reasons, fmt.Sprintf("%d transport errors", e.TransportErrors))
	}
	return fmt.Sprintf("ad5274: %s %s failed: %s", e.Op, e.Command, strings.Join(reasons, ", "))
}

func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrInvalidCommand:
		return e.InvalidCommand
	case ErrInvalidDatum:
		return e.InvalidDatum
	case ErrTransport:
		return e.TransportErrors > 0
	}
	return false
}

// Code renders the error as the packed negative integer of the legacy API.
// Reads report CodeBadCommand for a bad command, CodeBadLocation for an
// out of range location and the negated transport error count otherwise.
// Writes OR 0x20 (command) and 0x10 (datum) with the transport error count
// before negating. The count saturates at 0x0F so it never sets a flag bit.
func (e *ProtocolError) Code() int {
	if e.Op == opRead {
		switch {
		case e.InvalidCommand:
			return CodeBadCommand
		case e.InvalidDatum:
			return CodeBadLocation
		}
		return -e.TransportErrors
	}
	code := min(e.TransportErrors, codeErrorCountMask)
	if e.InvalidDatum {
		code |= codeWriteBadDatum
	}
	if e.InvalidCommand {
		code |= codeWriteBadCommand
	}
	return -code
}

// MismatchError reports a control register read back that differs from the
// value written. The bus itself succeeded.
type MismatchError struct {
	Want byte
	Got  byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("ad5274: control register mismatch: wrote %#x, read %#x", e.Want, e.Got)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrVerifyMismatch
}

type notImplementedError struct {
	op string
}

func (e *notImplementedError) Error() string {
	return fmt.Sprintf("ad5274: %s is not implemented", e.op)
}

func (e *notImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

func (e *notImplementedError) Code() int {
	return CodeNotImplemented
}
