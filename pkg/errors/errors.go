package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeDiscord represents Discord-related errors
	ErrorTypeDiscord ErrorType = "discord"
	// ErrorTypeFetch represents remote sound clip fetch errors
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeSynthesis represents speech synthesis errors
	ErrorTypeSynthesis ErrorType = "synthesis"
	// ErrorTypePlayback represents voice playback errors
	ErrorTypePlayback ErrorType = "playback"
	// ErrorTypeStore represents persisted JSON document store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
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

// Playback Errors

// ErrPlaybackBusy is returned when the voice connection is already playing.
// It is the only playback error worth retrying.
var ErrPlaybackBusy = NewBaseError(ErrorTypePlayback, "playback already in progress", nil)

// ErrPlaybackDropped is returned when the playback retry budget is exhausted
// and the request is abandoned
var ErrPlaybackDropped = NewBaseError(ErrorTypePlayback, "playback dropped after retry budget exhausted", nil)

// ErrNotConnected is returned when playback is requested without an active voice connection
var ErrNotConnected = NewBaseError(ErrorTypePlayback, "not connected to a voice channel", nil)

// Fetch Errors

// ErrFetchFailed is returned when fetching a remote sound clip fails
type ErrFetchFailed struct {
	*BaseError
	URL        string
	StatusCode int
}

func NewFetchFailed(url string, statusCode int, err error) *ErrFetchFailed {
	return &ErrFetchFailed{
		BaseError:  NewBaseError(ErrorTypeFetch, fmt.Sprintf("failed to fetch sound clip: %s (status %d)", url, statusCode), err),
		URL:        url,
		StatusCode: statusCode,
	}
}

// Synthesis Errors

// ErrSynthesisFailed is returned when the external synthesis engine exits
// non-zero or produces no output file
type ErrSynthesisFailed struct {
	*BaseError
	Voice string
}

func NewSynthesisFailed(voice string, err error) *ErrSynthesisFailed {
	return &ErrSynthesisFailed{
		BaseError: NewBaseError(ErrorTypeSynthesis, fmt.Sprintf("speech synthesis failed (voice: %s)", voice), err),
		Voice:     voice,
	}
}

// ErrVoiceNotFound is returned when a requested voice model is unknown
type ErrVoiceNotFound struct {
	*BaseError
	Voice string
}

func NewVoiceNotFound(voice string) *ErrVoiceNotFound {
	return &ErrVoiceNotFound{
		BaseError: NewBaseError(ErrorTypeSynthesis, fmt.Sprintf("voice model not found: %s", voice), nil),
		Voice:     voice,
	}
}

// Store Errors

// ErrStoreReadFailed is returned when a persisted document cannot be read
type ErrStoreReadFailed struct {
	*BaseError
	Document string
}

func NewStoreReadFailed(document string, err error) *ErrStoreReadFailed {
	return &ErrStoreReadFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to read document: %s", document), err),
		Document:  document,
	}
}

// ErrStoreWriteFailed is returned when a persisted document cannot be written
type ErrStoreWriteFailed struct {
	*BaseError
	Document string
}

func NewStoreWriteFailed(document string, err error) *ErrStoreWriteFailed {
	return &ErrStoreWriteFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to write document: %s", document), err),
		Document:  document,
	}
}

// ErrWordNotFound is returned when a dictionary entry does not exist
type ErrWordNotFound struct {
	*BaseError
	Word string
}

func NewWordNotFound(word string) *ErrWordNotFound {
	return &ErrWordNotFound{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("word not registered: %s", word), nil),
		Word:      word,
	}
}

// Discord Errors

// ErrDiscordChannelNotFound is returned when a Discord channel cannot be resolved
type ErrDiscordChannelNotFound struct {
	*BaseError
	ChannelID string
}

func NewDiscordChannelNotFound(channelID string) *ErrDiscordChannelNotFound {
	return &ErrDiscordChannelNotFound{
		BaseError: NewBaseError(ErrorTypeDiscord, fmt.Sprintf("channel not found: %s", channelID), nil),
		ChannelID: channelID,
	}
}

// ErrDiscordMessageSendFailed is returned when sending a Discord message fails
type ErrDiscordMessageSendFailed struct {
	*BaseError
	ChannelID string
}

func NewDiscordMessageSendFailed(channelID string, err error) *ErrDiscordMessageSendFailed {
	return &ErrDiscordMessageSendFailed{
		BaseError: NewBaseError(ErrorTypeDiscord, "failed to send message", err),
		ChannelID: channelID,
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

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if baseErr, ok := err.(*BaseError); ok {
		return baseErr.Type == errType
	}
	// Check wrapped errors
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapped.Unwrap(), errType)
	}
	return false
}

// IsBusy reports whether an error means the exclusive playback resource is
// in use. Anything else returned from a playback start is terminal.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if err == ErrPlaybackBusy {
		return true
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return IsBusy(wrapped.Unwrap())
	}
	return false
}
