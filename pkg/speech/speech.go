// Package speech defines the contract between the record extraction core and
// a speech-acquisition collaborator.
//
// The collaborator wraps whatever recognition engine the host platform offers
// and delivers transcript fragments — low-latency interim guesses followed by
// a settled final transcription per utterance — to a [Handler]. The core never
// sees audio; it consumes text fragments only.
package speech

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Source implementations on hosts without any
// speech recognition capability. Callers should degrade voice input to
// disabled rather than treat this as fatal.
var ErrUnsupported = errors.New("speech: recognition is not supported on this host")

// Fragment is one chunk of transcribed speech.
//
// Interim fragments are preliminary guesses that later fragments supersede;
// only fragments with IsFinal set represent the engine's settled transcription
// for an utterance and may trigger inference.
type Fragment struct {
	// Text is the transcribed content.
	Text string

	// IsFinal indicates a settled (authoritative) transcription.
	IsFinal bool

	// Confidence is the engine's confidence score (0.0–1.0).
	// Zero when the engine does not report confidence.
	Confidence float64
}

// ErrorCode categorises a recognition failure reported by the engine.
// The values mirror the error codes of common recognition engines.
type ErrorCode string

const (
	// ErrCodeNoSpeech — the engine heard no speech before giving up.
	ErrCodeNoSpeech ErrorCode = "no-speech"

	// ErrCodeAudioCapture — the microphone could not be accessed.
	ErrCodeAudioCapture ErrorCode = "audio-capture"

	// ErrCodeNotAllowed — microphone permission was denied.
	ErrCodeNotAllowed ErrorCode = "not-allowed"

	// ErrCodeNetwork — the engine's network backend failed.
	ErrCodeNetwork ErrorCode = "network"

	// ErrCodeOther — any failure not covered by the specific codes.
	ErrCodeOther ErrorCode = "other"
)

// IsValid reports whether c is a recognised error code.
func (c ErrorCode) IsValid() bool {
	switch c {
	case ErrCodeNoSpeech, ErrCodeAudioCapture, ErrCodeNotAllowed, ErrCodeNetwork, ErrCodeOther:
		return true
	}
	return false
}

// Description returns a human-readable Japanese description of the failure,
// suitable for direct display by the notification layer.
func (c ErrorCode) Description() string {
	switch c {
	case ErrCodeNoSpeech:
		return "音声が検出されませんでした。"
	case ErrCodeAudioCapture:
		return "マイクへのアクセスができませんでした。"
	case ErrCodeNotAllowed:
		return "マイクの使用が許可されていません。"
	case ErrCodeNetwork:
		return "ネットワークエラーが発生しました。"
	}
	return "音声認識エラーが発生しました。"
}

// Handler receives recognition events from a [Source]. Implementations must
// not block: the source delivers events sequentially and the next fragment is
// not offered until the current callback returns.
type Handler interface {
	// OnStarted signals that the engine has begun listening.
	OnStarted()

	// OnFragment delivers one transcript fragment, interim or final.
	OnFragment(f Fragment)

	// OnError reports a categorised recognition failure. The session is over
	// after an error; no further fragments follow until the next OnStarted.
	OnError(code ErrorCode)

	// OnStopped signals that the engine has stopped listening.
	OnStopped()
}

// Source is the abstraction over a speech-acquisition collaborator.
// Events are delivered to the [Handler] registered at construction time.
type Source interface {
	// Start begins a recognition session. Returns [ErrUnsupported] when the
	// host has no recognition capability.
	Start(ctx context.Context) error

	// Stop ends the current recognition session. Calling Stop when no session
	// is active is a no-op.
	Stop() error
}
