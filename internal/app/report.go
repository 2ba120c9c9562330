package app

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Stage names a step of a run for status reporting.
type Stage string

const (
	StageValidate Stage = "validating"
	StageExtract  Stage = "extracting"
	StageGenerate Stage = "generating"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// Reporter receives one status line per stage.
type Reporter interface {
	Report(stage Stage, msg string)
}

// LineReporter prints "stage: message" lines to W.
type LineReporter struct {
	W io.Writer
}

func (r LineReporter) Report(stage Stage, msg string) {
	if r.W == nil {
		return
	}
	_, _ = fmt.Fprintf(r.W, "%s: %s\n", stage, msg)
}

// logReporter is used when no Reporter is configured.
type logReporter struct{}

func (logReporter) Report(stage Stage, msg string) {
	log.Info().Str("stage", string(stage)).Msg(msg)
}
