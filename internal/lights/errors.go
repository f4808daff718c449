package lights

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

var (
	ErrUnavailable          = errors.New("transport unavailable")
	ErrNotFound             = errors.New("light not found on transport")
	ErrTimeout              = errors.New("light did not acknowledge in time")
	ErrProtocol             = errors.New("malformed or unexpected response")
	ErrNoTransportAvailable = errors.New("no connection method available")
	ErrDeviceNotFound       = errors.New("light not found")
	ErrControlFailed        = errors.New("light control failed")
	ErrInvalidControl       = errors.New("invalid light control")
	ErrSceneNotFound        = errors.New("scene not found")
)

// TransportError is returned by every Transport. It unwraps to both its Kind
// (one of the sentinel errors above) and the underlying cause.
type TransportError struct {
	Source  Source
	Op      string
	LightID string
	Kind    error
	Err     error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Source, e.Op)
	if e.LightID != "" {
		fmt.Fprintf(&b, " %s", e.LightID)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ControlAttempt records one routed control call.
type ControlAttempt struct {
	Source Source
	Err    error
}

// ControlError is returned by Coordinator.ControlLight when the primary and
// every fallback transport failed.
type ControlError struct {
	LightID  string
	Attempts []ControlAttempt
}

func (e *ControlError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return fmt.Sprintf("%v for %s (%s)", ErrControlFailed, e.LightID, strings.Join(parts, "; "))
}

func (e *ControlError) Unwrap() []error {
	errs := []error{ErrControlFailed}
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Last returns the error of the final attempt.
func (e *ControlError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// DiscoveryError is returned when every queried transport failed.
type DiscoveryError struct {
	Errs map[Source]error
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, src := range []Source{SourceLAN, SourceHTTP} {
		if err, ok := e.Errs[src]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", src, err))
		}
	}
	return "discovery failed: " + strings.Join(parts, "; ")
}

func (e *DiscoveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}

type ErrorType string

const (
	ErrorTypeNone              ErrorType = ""
	ErrorTypeNoLights          ErrorType = "no-lights"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionRefused ErrorType = "connection-refused"
	ErrorTypeNetwork           ErrorType = "network-error"
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// errAuth marks credential failures inside ErrUnavailable errors.
var errAuth = errors.New("invalid or missing API token")

// errNoLights marks a LAN scan that found nothing.
var errNoLights = errors.New("no lights discovered via LAN")

// ClassifyError maps a transport error to an ErrorType.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	switch {
	case errors.Is(err, errNoLights):
		return ErrorTypeNoLights
	case errors.Is(err, errAuth):
		return ErrorTypeAuth
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return ErrorTypeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	}
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// classify picks the taxonomy kind for a raw I/O error.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return ErrTimeout
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled):
		return ErrUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}
	return ErrProtocol
}
