package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrNoTranscriber indicates no transcription backend was provided.
	ErrNoTranscriber = errors.New("conversation: transcriber is required")

	// ErrNoProvider indicates no language model was provided.
	ErrNoProvider = errors.New("conversation: language model is required")

	// ErrNoSpeaker indicates no speaker was provided.
	ErrNoSpeaker = errors.New("conversation: speaker is required")

	// ErrNoSource indicates the session has no audio source.
	ErrNoSource = errors.New("conversation: audio source is required")

	// ErrNoTranscript indicates the utterance produced nothing worth answering.
	ErrNoTranscript = errors.New("conversation: nothing heard")

	// ErrEmptyReply indicates the language model answered with no text.
	ErrEmptyReply = errors.New("conversation: empty reply")
)

// Stage names the step of a turn that failed.
type Stage string

// Turn stages.
const (
	StageTranscribe Stage = "transcribe"
	StageChat       Stage = "chat"
	StageSpeak      Stage = "speak"
)

// TurnError reports a failed turn and the stage it failed in.
type TurnError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	return fmt.Sprintf("conversation: %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage of a TurnError in err's chain, or "".
func FailedStage(err error) Stage {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Stage
	}
	return ""
}
