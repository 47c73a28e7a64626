package at

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorType is the category of a failed final result.
type ErrorType int

const (
	ErrorTypeFailure ErrorType = iota // ERROR, NO CARRIER and other plain failures
	ErrorTypeCME                      // +CME ERROR: equipment errors (27.007)
	ErrorTypeCMS                      // +CMS ERROR: message service errors (27.005)
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeCME:
		return "CME"
	case ErrorTypeCMS:
		return "CMS"
	default:
		return "failure"
	}
}

// Error is a command that completed with a failing final result.
//
// Code is the numeric error code of +CME/+CMS errors and zero otherwise.
// Modems configured for verbose errors (AT+CMEE=2) report text instead of a
// number; the text is kept in Message and Code is zero.
type Error struct {
	Type    ErrorType
	Code    int
	Message string
	Final   string
}

func (e *Error) Error() string {
	switch {
	case e.Type == ErrorTypeFailure:
		return fmt.Sprintf("command failed: %s", e.Final)
	case e.Message != "":
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	default:
		return fmt.Sprintf("%s error %d", e.Type, e.Code)
	}
}

// DecodeError turns a final result line into an error. It returns nil for
// "OK" and an *Error for everything else.
func DecodeError(final string) error {
	switch {
	case final == OK:
		return nil
	case strings.HasPrefix(final, CmsError):
		return newCodedError(ErrorTypeCMS, final, final[len(CmsError):])
	case strings.HasPrefix(final, CmeError):
		return newCodedError(ErrorTypeCME, final, final[len(CmeError):])
	default:
		return &Error{Type: ErrorTypeFailure, Final: final}
	}
}

func newCodedError(t ErrorType, final, rest string) *Error {
	e := &Error{Type: t, Final: final}
	rest = strings.TrimSpace(rest)
	if code, err := strconv.Atoi(rest); err == nil {
		e.Code = code
	} else {
		e.Message = rest
	}
	return e
}
