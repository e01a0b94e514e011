package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
)

// 错误码，取值与 HTTP 状态一致便于映射
const (
	CodeRejectedInput  = http.StatusBadRequest
	CodeUnauthorized   = http.StatusUnauthorized
	CodeNotFound       = http.StatusNotFound
	CodeConflict       = http.StatusConflict
	CodeStorageFailure = http.StatusInternalServerError
	CodeUpstream       = http.StatusBadGateway
)

// Error represents a custom error with stack trace
type Error struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Err     error               `json:"-"`
	Stack   string              `json:"stack,omitempty"`
	Context []KeyValue          `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if len(e.Fields) > 0 {
		return "invalid input: " + joinFields(e.Fields)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return WithCode(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with message
func Wrap(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Rejected 输入校验失败，fields 为字段级错误信息
func Rejected(fields map[string][]string) *Error {
	return &Error{
		Code:   CodeRejectedInput,
		Fields: fields,
		Stack:  captureStack(),
	}
}

// Storage 持久化失败
func Storage(err error, message string) *Error {
	return Wrap(err, CodeStorageFailure, message)
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}
	newErr := *e
	newErr.Context = make([]KeyValue, len(e.Context), len(e.Context)+1)
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})
	return &newErr
}

func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	if len(lines) > 6 {
		return strings.TrimSpace(strings.Join(lines[6:], "\n"))
	}
	return strings.TrimSpace(string(buf[:n]))
}

// As 在错误链中查找 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code, 0 when err carries none
func GetCode(err error) int {
	if e, ok := As(err); ok {
		return e.Code
	}
	return 0
}

// IsRejected reports whether err is a RejectedInput error
func IsRejected(err error) bool {
	return GetCode(err) == CodeRejectedInput
}

// IsStorage reports whether err is a StorageFailure error
func IsStorage(err error) bool {
	return GetCode(err) == CodeStorageFailure
}

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		e, ok := err.(*Error)
		if !ok || e.Err == nil {
			return err
		}
		err = e.Err
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func joinFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], "; "))
	}
	return strings.Join(parts, ", ")
}
