// Package pipeline sequences the three remote inference stages — speech
// recognition, text generation, speech synthesis — and persists one history
// record per attempt that reaches the persistence step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kalambet/voicepipe/internal/remote"
	"github.com/kalambet/voicepipe/internal/storage"
)

// ErrNoGeneratedText is returned by ProcessAudio when no generated text is
// cached in the user's session; the generate stage must run first.
var ErrNoGeneratedText = errors.New("no generated text cached; run the generate stage first")

// RecognizeClient is the speech-to-text service contract.
type RecognizeClient interface {
	Recognize(ctx context.Context) (remote.RecognizeResult, error)
}

// GenerateClient is the text-to-text service contract.
type GenerateClient interface {
	Generate(ctx context.Context) (remote.GenerateResult, error)
}

// SynthesizeClient is the text-to-speech service contract.
type SynthesizeClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ArtifactWriter persists synthesized audio and returns the artifact name.
type ArtifactWriter interface {
	Write(userID int64, attempt int, data []byte) (string, error)
}

// HistoryStore is the durable per-user attempt history.
type HistoryStore interface {
	AppendAttempt(userID int64, a storage.Attempt) (storage.UserHistory, error)
	History(userID int64) (storage.UserHistory, error)
	ListHistories() ([]storage.UserHistory, error)
	AttemptCount(userID int64) (int, error)
	UserExists(userID int64) (bool, error)
}

// Orchestrator sequences the three stage runners over per-user sessions and
// drives history writes. It is the single source of truth for the
// early-termination and persistence rules, shared by the atomic full-run
// entry point and the piecewise per-stage entry points.
type Orchestrator struct {
	recognizer  RecognizeClient
	generator   GenerateClient
	synthesizer SynthesizeClient
	artifacts   ArtifactWriter
	store       HistoryStore
	sessions    *Sessions
}

// New creates an Orchestrator wired to its three stage clients, the audio
// artifact writer, and the history store.
func New(rec RecognizeClient, gen GenerateClient, syn SynthesizeClient, art ArtifactWriter, store HistoryStore) *Orchestrator {
	return &Orchestrator{
		recognizer:  rec,
		generator:   gen,
		synthesizer: syn,
		artifacts:   art,
		store:       store,
		sessions:    NewSessions(),
	}
}

// FinalData is the cross-stage payload of a completed run.
type FinalData struct {
	InputAudioRef  *string `json:"input_wav"`
	RecognizedText string  `json:"atot_text"`
	GeneratedText  string  `json:"ttot_text"`
	OutputAudioRef *string `json:"output_wav"`
}

// Result aggregates a full pipeline run. Success means the run reached the
// persistence step; TTSSuccess distinguishes whether audio was actually
// produced.
type Result struct {
	RunID      string       `json:"run_id"`
	UserID     int64        `json:"user_id"`
	Success    bool         `json:"success"`
	Recognize  *StageStatus `json:"step1_atot"`
	Generate   *StageStatus `json:"step2_ttot"`
	Synthesize *StageStatus `json:"step3_tts"`
	TTSSuccess bool         `json:"tts_success"`
	Errors     []string     `json:"errors"`
	FinalData  *FinalData   `json:"final_data,omitempty"`
}

// RecognizeView is the response of the piecewise recognize entry point.
type RecognizeView struct {
	UserID         int64   `json:"user_id"`
	InputAudioRef  *string `json:"input_wav"`
	RecognizedText *string `json:"atot_text"`
}

// GenerateView is the response of the piecewise generate entry point.
type GenerateView struct {
	UserID        int64   `json:"user_id"`
	GeneratedText *string `json:"ttot_text"`
}

// ProcessResult is the response of the synthesize-and-persist entry point.
type ProcessResult struct {
	UserID          int64     `json:"user_id"`
	InputAudioRef   *string   `json:"input_wav"`
	RecognizedText  string    `json:"atot_text"`
	GeneratedText   string    `json:"ttot_text"`
	OutputAudioRef  *string   `json:"output_wav"`
	OutputAudioRefs []*string `json:"output_wav_list"`
	TTSSuccess      bool      `json:"tts_success"`
	TTSError        string    `json:"tts_error,omitempty"`
	Message         string    `json:"message"`
}

// Run executes the full pipeline for the user: recognize, generate,
// synthesize, persist. A recognize or generate failure terminates the run
// before persistence; a synthesize failure does not — the attempt is still
// recorded with an absent output reference.
func (o *Orchestrator) Run(ctx context.Context, userID int64) Result {
	sess := o.sessions.Get(userID)
	sess.Lock()
	defer sess.Unlock()
	pctx := sess.Context()

	result := Result{
		RunID:  uuid.NewString(),
		UserID: userID,
		Errors: []string{},
	}
	slog.Info("pipeline run starting", "run_id", result.RunID, "user_id", userID)

	out := o.runRecognize(ctx, pctx)
	result.Recognize = out.Status()
	if !out.OK() {
		result.Errors = append(result.Errors, result.Recognize.Error)
		return result
	}

	out = o.runGenerate(ctx, pctx)
	result.Generate = out.Status()
	if !out.OK() {
		result.Errors = append(result.Errors, result.Generate.Error)
		return result
	}

	// A lenient generate success can still carry no text; there is nothing
	// to synthesize or persist in that case.
	if pctx.GeneratedText == nil {
		msg := "ttot: response carried no generated text"
		result.Synthesize = &StageStatus{Success: false, Error: msg}
		result.Errors = append(result.Errors, msg)
		return result
	}

	outputRef, synthesized, perr := o.synthesizeAndPersist(ctx, pctx)
	result.Synthesize = synthesized.Status()
	result.TTSSuccess = synthesized.OK()
	if !synthesized.OK() {
		result.Errors = append(result.Errors, result.Synthesize.Error)
	}
	if perr != nil {
		result.Errors = append(result.Errors, "persistence: "+perr.Error())
		return result
	}

	result.Success = true
	result.FinalData = &FinalData{
		InputAudioRef:  pctx.InputAudioRef,
		RecognizedText: orEmpty(pctx.RecognizedText),
		GeneratedText:  orEmpty(pctx.GeneratedText),
		OutputAudioRef: outputRef,
	}
	slog.Info("pipeline run complete",
		"run_id", result.RunID,
		"user_id", userID,
		"tts_success", result.TTSSuccess,
	)
	return result
}

// synthesizeAndPersist runs the synthesize stage and then records the
// attempt regardless of the stage's outcome. The returned error is a
// persistence failure only; the session context is left intact so
// persistence can be retried without re-running the remote stages.
func (o *Orchestrator) synthesizeAndPersist(ctx context.Context, pctx *Context) (*string, Outcome, error) {
	count, err := o.store.AttemptCount(pctx.UserID)
	if err != nil {
		return nil, failure(StageSynthesize, err), err
	}
	attempt := count + 1

	outputRef, out := o.runSynthesize(ctx, pctx, attempt)

	if _, err := o.store.AppendAttempt(pctx.UserID, storage.Attempt{
		InputAudioRef:  pctx.InputAudioRef,
		RecognizedText: orEmpty(pctx.RecognizedText),
		GeneratedText:  orEmpty(pctx.GeneratedText),
		OutputAudioRef: outputRef,
	}); err != nil {
		return outputRef, out, err
	}
	return outputRef, out, nil
}

// RunRecognize executes the recognize stage alone, caching its payload in
// the user's session for later piecewise calls.
func (o *Orchestrator) RunRecognize(ctx context.Context, userID int64) (RecognizeView, error) {
	sess := o.sessions.Get(userID)
	sess.Lock()
	defer sess.Unlock()
	pctx := sess.Context()

	if out := o.runRecognize(ctx, pctx); !out.OK() {
		return RecognizeView{}, out.Err
	}
	return RecognizeView{
		UserID:         userID,
		InputAudioRef:  pctx.InputAudioRef,
		RecognizedText: pctx.RecognizedText,
	}, nil
}

// RunGenerate executes the generate stage alone, caching its payload in the
// user's session.
func (o *Orchestrator) RunGenerate(ctx context.Context, userID int64) (GenerateView, error) {
	sess := o.sessions.Get(userID)
	sess.Lock()
	defer sess.Unlock()
	pctx := sess.Context()

	if out := o.runGenerate(ctx, pctx); !out.OK() {
		return GenerateView{}, out.Err
	}
	return GenerateView{UserID: userID, GeneratedText: pctx.GeneratedText}, nil
}

// ProcessAudio synthesizes speech from the session's cached generated text
// and persists the attempt. The attempt is recorded even when synthesis
// fails; only a missing cached text or a persistence failure is an error.
func (o *Orchestrator) ProcessAudio(ctx context.Context, userID int64) (ProcessResult, error) {
	sess := o.sessions.Get(userID)
	sess.Lock()
	defer sess.Unlock()
	pctx := sess.Context()

	if pctx.GeneratedText == nil {
		return ProcessResult{}, ErrNoGeneratedText
	}

	outputRef, out, perr := o.synthesizeAndPersist(ctx, pctx)
	if perr != nil {
		return ProcessResult{}, perr
	}

	h, err := o.store.History(userID)
	if err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{
		UserID:          userID,
		InputAudioRef:   pctx.InputAudioRef,
		RecognizedText:  orEmpty(pctx.RecognizedText),
		GeneratedText:   orEmpty(pctx.GeneratedText),
		OutputAudioRef:  outputRef,
		OutputAudioRefs: h.OutputAudioRefs,
		TTSSuccess:      out.OK(),
	}
	if out.OK() {
		result.Message = fmt.Sprintf("speech audio stored as %s", orEmpty(outputRef))
	} else {
		result.TTSError = out.Status().Error
		result.Message = "attempt recorded, but speech synthesis failed"
	}
	return result, nil
}

// History returns the user's durable attempt history, creating an empty one
// on first access.
func (o *Orchestrator) History(userID int64) (storage.UserHistory, error) {
	return o.store.History(userID)
}

// Histories returns every known user's history ordered by user ID.
func (o *Orchestrator) Histories() ([]storage.UserHistory, error) {
	return o.store.ListHistories()
}

// UserExists reports whether the user has been seen before.
func (o *Orchestrator) UserExists(userID int64) (bool, error) {
	return o.store.UserExists(userID)
}
