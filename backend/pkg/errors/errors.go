package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeVoice represents voice session join/leave errors
	ErrorTypeVoice ErrorType = "voice"
	// ErrorTypeSynthesis represents errors from the TTS HTTP service
	ErrorTypeSynthesis ErrorType = "synthesis"
	// ErrorTypePlayback represents errors surfacing after audio was enqueued
	ErrorTypePlayback ErrorType = "playback"
	// ErrorTypeSettings represents settings store errors
	ErrorTypeSettings ErrorType = "settings"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
	// Soft errors abandon a single message silently instead of being reported
	Soft bool
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

func newSoftError(errType ErrorType, message string) *BaseError {
	e := NewBaseError(errType, message, nil)
	e.Soft = true
	return e
}

// Voice Errors

// ErrJoinTimeout is returned when a voice handshake does not finish in time.
// Recoverable: the message is abandoned and the next one will try again.
var ErrJoinTimeout = newSoftError(ErrorTypeVoice, "timed out joining voice channel")

// ErrNoVoiceChannel is returned when delivery has neither a session nor a channel to recover into
var ErrNoVoiceChannel = newSoftError(ErrorTypeVoice, "no voice channel to join")

// ErrSessionClosed is returned when audio is queued on a session that has been torn down
var ErrSessionClosed = NewBaseError(ErrorTypeVoice, "voice session closed", nil)

// ErrVoiceJoinFailed is returned when the transport refused a join
type ErrVoiceJoinFailed struct {
	*BaseError
	GuildID   string
	ChannelID string
}

func NewVoiceJoinFailed(guildID, channelID string, err error) *ErrVoiceJoinFailed {
	return &ErrVoiceJoinFailed{
		BaseError: NewBaseError(ErrorTypeVoice, fmt.Sprintf("failed to join channel %s in guild %s", channelID, guildID), err),
		GuildID:   guildID,
		ChannelID: channelID,
	}
}

// ErrVoiceLeaveFailed is returned when tearing down a transport session fails
type ErrVoiceLeaveFailed struct {
	*BaseError
	GuildID string
}

func NewVoiceLeaveFailed(guildID string, err error) *ErrVoiceLeaveFailed {
	return &ErrVoiceLeaveFailed{
		BaseError: NewBaseError(ErrorTypeVoice, fmt.Sprintf("failed to leave voice in guild %s", guildID), err),
		GuildID:   guildID,
	}
}

// Synthesis Errors

// ErrAudioTooLong is returned when the TTS service refuses a message for exceeding max_length
var ErrAudioTooLong = newSoftError(ErrorTypeSynthesis, "audio too long")

// ErrSynthesisRequestFailed is returned for transport-level failures talking to the TTS service
type ErrSynthesisRequestFailed struct {
	*BaseError
	StatusCode int
}

func NewSynthesisRequestFailed(statusCode int, err error) *ErrSynthesisRequestFailed {
	msg := "tts request failed"
	if statusCode != 0 {
		msg = fmt.Sprintf("tts request failed with status %d", statusCode)
	}
	return &ErrSynthesisRequestFailed{
		BaseError:  NewBaseError(ErrorTypeSynthesis, msg, err),
		StatusCode: statusCode,
	}
}

// ErrSynthesisRejected is returned when the TTS service reports an error body
type ErrSynthesisRejected struct {
	*BaseError
	Code    uint8
	Display string
}

func NewSynthesisRejected(code uint8, display string) *ErrSynthesisRejected {
	return &ErrSynthesisRejected{
		BaseError: NewBaseError(ErrorTypeSynthesis, fmt.Sprintf("tts service error %d: %s", code, display), nil),
		Code:      code,
		Display:   display,
	}
}

// Playback Errors

// ErrPlaybackFailed wraps an asynchronous failure reported by the voice transport
type ErrPlaybackFailed struct {
	*BaseError
	GuildID string
}

func NewPlaybackFailed(guildID string, err error) *ErrPlaybackFailed {
	return &ErrPlaybackFailed{
		BaseError: NewBaseError(ErrorTypePlayback, fmt.Sprintf("playback failed in guild %s", guildID), err),
		GuildID:   guildID,
	}
}

// Settings Errors

// ErrSettingsQueryFailed is returned when the settings store cannot be read
type ErrSettingsQueryFailed struct {
	*BaseError
	Key string
}

func NewSettingsQueryFailed(key string, err error) *ErrSettingsQueryFailed {
	return &ErrSettingsQueryFailed{
		BaseError: NewBaseError(ErrorTypeSettings, fmt.Sprintf("settings query failed: %s", key), err),
		Key:       key,
	}
}

// Context Errors

// ErrContextTimeout is returned when an operation runs out of its deadline
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), context.DeadlineExceeded),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

type baseErrorCarrier interface {
	base() *BaseError
}

func (e *BaseError) base() *BaseError { return e }

func asBase(err error) (*BaseError, bool) {
	var carrier baseErrorCarrier
	if errors.As(err, &carrier) {
		return carrier.base(), true
	}
	return nil, false
}

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if b, ok := asBase(err); ok && b.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// TypeOf returns the category of err, or "unknown"
func TypeOf(err error) string {
	if b, ok := asBase(err); ok {
		return string(b.Type)
	}
	return "unknown"
}

// IsSoft reports whether err should abandon the message without being reported
func IsSoft(err error) bool {
	if b, ok := asBase(err); ok {
		return b.Soft
	}
	return false
}
