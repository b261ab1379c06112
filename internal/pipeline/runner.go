package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// runRecognize executes the speech-to-text stage and applies its payload to
// the session context. A lenient 2xx with missing fields still counts as
// success; the context fields stay nil.
func (o *Orchestrator) runRecognize(ctx context.Context, pctx *Context) Outcome {
	result, err := o.recognizer.Recognize(ctx)
	if err != nil {
		slog.Warn("recognize stage failed", "user_id", pctx.UserID, "error", err)
		return failure(StageRecognize, err)
	}

	pctx.InputAudioRef = result.AudioRef
	pctx.RecognizedText = result.Text
	slog.Debug("recognize stage complete",
		"user_id", pctx.UserID,
		"has_text", result.Text != nil,
	)
	return success(StageRecognize)
}

// runGenerate executes the text-to-text stage and applies its payload to
// the session context.
func (o *Orchestrator) runGenerate(ctx context.Context, pctx *Context) Outcome {
	result, err := o.generator.Generate(ctx)
	if err != nil {
		slog.Warn("generate stage failed", "user_id", pctx.UserID, "error", err)
		return failure(StageGenerate, err)
	}

	pctx.GeneratedText = result.Text
	slog.Debug("generate stage complete",
		"user_id", pctx.UserID,
		"has_text", result.Text != nil,
	)
	return success(StageGenerate)
}

// runSynthesize executes the text-to-speech stage. On success the audio is
// written as an artifact named by user and attempt, and the artifact name
// is returned. The session context is not mutated.
func (o *Orchestrator) runSynthesize(ctx context.Context, pctx *Context, attempt int) (*string, Outcome) {
	audio, err := o.synthesizer.Synthesize(ctx, orEmpty(pctx.GeneratedText))
	if err != nil {
		slog.Warn("synthesize stage failed", "user_id", pctx.UserID, "error", err)
		return nil, failure(StageSynthesize, err)
	}

	name, err := o.artifacts.Write(pctx.UserID, attempt, audio)
	if err != nil {
		slog.Error("synthesize stage produced audio but artifact write failed",
			"user_id", pctx.UserID, "attempt", attempt, "error", err)
		return nil, failure(StageSynthesize, fmt.Errorf("storing audio: %w", err))
	}

	slog.Info("synthesize stage complete",
		"user_id", pctx.UserID,
		"artifact", name,
		"bytes", len(audio),
	)
	return &name, success(StageSynthesize)
}

func orEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
