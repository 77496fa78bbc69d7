package stt

import "fmt"

// ErrorKind classifies recognition failures.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorPermissionDenied
	ErrorNoSpeech
	ErrorNetwork
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "permission-denied"
	case ErrorNoSpeech:
		return "no-speech"
	case ErrorNetwork:
		return "network"
	}
	return "other"
}

// RecognitionError is a classified recognition failure reported through an
// EventError.
type RecognitionError struct {
	Kind ErrorKind

	// Code is the backend's raw error code, if any.
	Code string

	// Err is the underlying cause, if any.
	Err error
}

// NewError builds a RecognitionError classifying code with [ClassifyError].
func NewError(code string, err error) *RecognitionError {
	return &RecognitionError{Kind: ClassifyError(code), Code: code, Err: err}
}

// Error implements error.
func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stt: recognition %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("stt: recognition %s (%s)", e.Kind, e.Code)
}

// Unwrap returns the underlying cause.
func (e *RecognitionError) Unwrap() error { return e.Err }

// Message returns the user-facing description of the failure.
func (e *RecognitionError) Message() string {
	switch e.Kind {
	case ErrorPermissionDenied:
		return "Microphone access was denied, so your reading can't be heard."
	case ErrorNoSpeech:
		return "No speech was detected. Please try again and speak clearly."
	case ErrorNetwork:
		return "A network error interrupted speech recognition. Check your connection and try again."
	}
	if e.Code != "" {
		return "Speech recognition error: " + e.Code
	}
	return "Speech recognition failed. Please try again."
}

// Remediation returns host instructions for recovering from the failure. It is
// empty for every kind except ErrorPermissionDenied.
func (e *RecognitionError) Remediation() string {
	if e.Kind != ErrorPermissionDenied {
		return ""
	}
	return "Allow microphone access for this application in your system privacy settings " +
		"(or check the speech service API key), then start listening again."
}

// ClassifyError maps a host or backend error code to an ErrorKind.
func ClassifyError(code string) ErrorKind {
	switch code {
	case "not-allowed", "service-not-allowed", "permission-denied", "unauthorized", "forbidden":
		return ErrorPermissionDenied
	case "no-speech", "speech-timeout":
		return ErrorNoSpeech
	case "network", "network-error", "connection-lost":
		return ErrorNetwork
	}
	return ErrorOther
}
