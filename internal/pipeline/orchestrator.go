// ABOUTME: Drives one assistant invocation from uploaded audio to a published reply
// ABOUTME: Transcribes, lets the model pick a tool, runs the branch, and ends with one terminal signal

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/ava-gateway/internal/ai"
	"github.com/2389/ava-gateway/internal/events"
	"github.com/2389/ava-gateway/internal/media"
	"github.com/2389/ava-gateway/internal/store"
	"github.com/2389/ava-gateway/internal/tools"
)

// AudioField is the only multipart field an upload may carry.
const AudioField = "audio"

const defaultAudioFilename = "audio.webm"

// System prompts.
const (
	toolSelectionPrompt = "I can help to identify which tool to use, if no proper tool could be used, I'll directly reply the message with pure text"
	answerPrompt        = "You are Ava, a friendly voice assistant. Answer in a few short spoken sentences. Do not use markdown, lists, or code."
	coderPrompt         = "You are Ava, an expert programmer. Reply with the requested code in fenced markdown code blocks tagged with their language, followed by a brief explanation."
)

// Outcome statuses returned to the uploader.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// AI is the set of external model calls an invocation makes. *ai.Client implements it.
type AI interface {
	Transcribe(ctx context.Context, audio []byte, filename, locale string) (string, error)
	Complete(ctx context.Context, req ai.ChatRequest) (*ai.ChatResult, error)
	Speech(ctx context.Context, text string) ([]byte, error)
	GenerateImage(ctx context.Context, prompt string) (*ai.Image, error)
}

// ArtifactStore persists generated media. *media.Store implements it.
type ArtifactStore interface {
	Save(ctx context.Context, kind media.Kind, deviceID, ext string, data []byte) (media.Artifact, error)
}

// MarkdownRenderer turns model markdown into sanitized HTML. *markdown.Renderer implements it.
type MarkdownRenderer interface {
	Render(src string) (string, error)
}

// Recorder keeps a ledger of finished invocations. *store.SQLiteStore implements it.
type Recorder interface {
	SaveInvocation(ctx context.Context, inv *store.Invocation) error
}

// Config tunes invocations.
type Config struct {
	// Locale is passed to transcription as a language hint.
	Locale string
	// InvocationTimeout bounds one invocation. Zero means no limit.
	InvocationTimeout time.Duration
}

// Deps are the collaborators an Orchestrator calls. Recorder and Logger are optional.
type Deps struct {
	AI        AI
	Artifacts ArtifactStore
	Markdown  MarkdownRenderer
	Recorder  Recorder
	Logger    *slog.Logger
}

// Orchestrator runs assistant invocations. It is safe for concurrent use;
// invocations share nothing but the sinks they publish to.
type Orchestrator struct {
	cfg       Config
	ai        AI
	artifacts ArtifactStore
	markdown  MarkdownRenderer
	recorder  Recorder
	tools     []tools.Definition
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.AI == nil || deps.Artifacts == nil || deps.Markdown == nil {
		return nil, errors.New("pipeline: AI, Artifacts and Markdown are required")
	}
	defs, err := tools.Definitions()
	if err != nil {
		return nil, fmt.Errorf("building tool definitions: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		ai:        deps.AI,
		artifacts: deps.Artifacts,
		markdown:  deps.Markdown,
		recorder:  deps.Recorder,
		tools:     defs,
		logger:    logger.With("component", "pipeline"),
		now:       time.Now,
	}, nil
}

// Request is one upload to process.
type Request struct {
	DeviceID string
	Upload   *multipart.Reader
	Sink     Publisher
}

// Outcome is what the uploader is told. Err is nil when Status is "done".
type Outcome struct {
	ID     string
	Status string
	Err    error
}

// invocation is the state of one Run.
type invocation struct {
	id       string
	deviceID string
	sink     Publisher
	tool     tools.Name
	usage    ai.Usage
}

func (inv *invocation) publish(e events.Event) {
	inv.sink.Publish(e)
}

func (inv *invocation) progress(step events.Step) {
	inv.publish(events.Progress(step))
}

// Run executes one invocation and publishes exactly one terminal signal,
// Complete or Error, to req.Sink. It runs detached from ctx's cancellation so
// a dropped upload still reaches its terminal event; the configured timeout
// bounds it instead.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	inv := &invocation{
		id:       uuid.NewString(),
		deviceID: req.DeviceID,
		sink:     req.Sink,
	}
	started := o.now()

	ctx = context.WithoutCancel(ctx)
	if o.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.InvocationTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("ava.invocation.id", inv.id),
		attribute.String("ava.device.id", inv.deviceID),
	))
	defer span.End()

	err := o.run(ctx, inv, req.Upload)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = newError(KindUpstream, msgInvocationTimedOut, err)
	}

	out := Outcome{ID: inv.id, Status: StatusDone}
	if err != nil {
		out = Outcome{ID: inv.id, Status: StatusError, Err: err}
		inv.publish(events.Failed(err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("invocation failed",
			"id", inv.id,
			"device_id", inv.deviceID,
			"tool", string(inv.tool),
			"kind", KindOf(err).String(),
			"error", err,
		)
	} else {
		inv.publish(events.Completed())
		o.logger.Info("invocation complete",
			"id", inv.id,
			"device_id", inv.deviceID,
			"tool", string(inv.tool),
		)
	}
	span.SetAttributes(attribute.String("ava.tool", string(inv.tool)))

	finished := o.now()
	recordMetrics(ctx, string(inv.tool), out.Status, finished.Sub(started),
		inv.usage.PromptTokens, inv.usage.CompletionTokens)
	o.record(ctx, inv, out, started, finished)

	return out
}

func (o *Orchestrator) record(ctx context.Context, inv *invocation, out Outcome, started, finished time.Time) {
	if o.recorder == nil {
		return
	}
	entry := &store.Invocation{
		ID:               inv.id,
		DeviceID:         inv.deviceID,
		Tool:             string(inv.tool),
		Status:           out.Status,
		PromptTokens:     inv.usage.PromptTokens,
		CompletionTokens: inv.usage.CompletionTokens,
		StartedAt:        started,
		FinishedAt:       finished,
	}
	if out.Err != nil {
		entry.ErrorKind = KindOf(out.Err).String()
		entry.Error = out.Err.Error()
	}

	// The invocation's own deadline may already have passed.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.recorder.SaveInvocation(recCtx, entry); err != nil {
		o.logger.Error("failed to record invocation", "id", inv.id, "error", err)
	}
}

func (o *Orchestrator) run(ctx context.Context, inv *invocation, upload *multipart.Reader) error {
	inv.progress(events.StepUploadAudio)
	audio, filename, err := readAudio(upload)
	if err != nil {
		return err
	}

	inv.progress(events.StepTranscription)
	transcript, err := o.ai.Transcribe(ctx, audio, filename, o.cfg.Locale)
	if err != nil {
		return newError(KindUpstream, msgTranscription, err)
	}
	inv.publish(events.Input{ID: inv.id, Content: transcript})

	inv.progress(events.StepThinking)
	call, preset, err := o.think(ctx, inv, transcript)
	if err != nil {
		return err
	}
	inv.tool = call.Tool()

	inv.publish(events.NewReplySkeleton(inv.id))

	var data events.ReplyData
	switch c := call.(type) {
	case tools.DrawImageCall:
		data, err = o.drawImage(ctx, inv, c.Args.Prompt)
	case tools.WriteCodeCall:
		data, err = o.writeCode(ctx, inv, c.Args.Prompt)
	case tools.AnswerCall:
		data, err = o.answer(ctx, inv, c.Args.Prompt, preset)
	default:
		panic(fmt.Sprintf("pipeline: unhandled tool call %T", call))
	}
	if err != nil {
		return err
	}

	inv.publish(events.Reply{ID: inv.id, Data: data})
	return nil
}

// readAudio requires the upload to carry exactly one part, named "audio".
func readAudio(upload *multipart.Reader) (data []byte, filename string, err error) {
	if upload == nil {
		return nil, "", newError(KindInputValidation, msgExpectedAudio, nil)
	}

	part, err := upload.NextPart()
	if errors.Is(err, io.EOF) {
		return nil, "", newError(KindInputValidation, msgExpectedAudio, nil)
	}
	if err != nil {
		return nil, "", newError(KindInputValidation, msgReadUpload, err)
	}
	defer part.Close()

	if part.FormName() != AudioField {
		return nil, "", newError(KindInputValidation, msgExpectedAudio, nil)
	}

	data, err = io.ReadAll(part)
	if err != nil {
		return nil, "", newError(KindInputValidation, msgReadUpload, err)
	}
	if len(data) == 0 {
		return nil, "", newError(KindInputValidation, msgEmptyAudio, nil)
	}

	extra, err := upload.NextPart()
	switch {
	case err == nil:
		_ = extra.Close()
		return nil, "", newError(KindInputValidation, msgExpectedAudio, nil)
	case !errors.Is(err, io.EOF):
		return nil, "", newError(KindInputValidation, msgReadUpload, err)
	}

	filename = part.FileName()
	if filename == "" {
		filename = defaultAudioFilename
	}
	return data, filename, nil
}

// think asks the model to pick a tool. A plain stop is an answer whose text is
// already written; preset carries that text.
func (o *Orchestrator) think(ctx context.Context, inv *invocation, transcript string) (call tools.Invocation, preset *string, err error) {
	res, err := o.ai.Complete(ctx, ai.ChatRequest{
		System: toolSelectionPrompt,
		Name:   events.AssistantName,
		User:   transcript,
		Tools:  o.tools,
	})
	if err != nil {
		return nil, nil, newError(KindUpstream, msgChatCompletion, err)
	}
	inv.usage = inv.usage.Add(res.Usage)

	switch res.FinishReason {
	case ai.FinishStop:
		if res.Content == "" {
			return nil, nil, newError(KindUpstream, msgEmptyAnswer, nil)
		}
		text := res.Content
		return tools.AnswerCall{Args: tools.AnswerArgs{Prompt: transcript}}, &text, nil

	case ai.FinishToolCalls:
		if len(res.ToolCalls) == 0 {
			return nil, nil, newError(KindUpstream, msgMissingToolCall, nil)
		}
		if len(res.ToolCalls) > 1 {
			o.logger.Debug("ignoring extra tool calls", "id", inv.id, "count", len(res.ToolCalls)-1)
		}
		first := res.ToolCalls[0]
		call, err := tools.Dispatch(first.Name, first.Arguments)
		switch {
		case errors.Is(err, tools.ErrToolNotFound):
			return nil, nil, newError(KindUnsupported, msgNoTool, nil)
		case err != nil:
			return nil, nil, newError(KindInputValidation, msgInvalidToolArgs, err)
		}
		return call, nil, nil

	default:
		return nil, nil, newError(KindUnsupported, msgStopReason, nil)
	}
}

func (o *Orchestrator) drawImage(ctx context.Context, inv *invocation, prompt string) (events.ReplyData, error) {
	inv.progress(events.StepDrawImage)

	img, err := o.ai.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, newError(KindUpstream, msgImage, err)
	}

	art, err := o.artifacts.Save(ctx, media.KindImage, inv.deviceID, "png", img.Data)
	if err != nil {
		return nil, newError(KindStorage, msgSaveImage, err)
	}

	return events.Image{URL: art.URL, Prompt: img.RevisedPrompt}, nil
}

func (o *Orchestrator) writeCode(ctx context.Context, inv *invocation, prompt string) (events.ReplyData, error) {
	inv.progress(events.StepWriteCode)

	res, err := o.ai.Complete(ctx, ai.ChatRequest{
		System: coderPrompt,
		Name:   events.AssistantName,
		User:   prompt,
	})
	if err != nil {
		return nil, newError(KindUpstream, msgChatCompletion, err)
	}
	inv.usage = inv.usage.Add(res.Usage)
	if res.Content == "" {
		return nil, newError(KindUpstream, msgEmptyAnswer, nil)
	}

	html, err := o.markdown.Render(res.Content)
	if err != nil {
		return nil, newError(KindUpstream, msgMarkdown, err)
	}

	return events.Markdown{HTML: html}, nil
}

// answer speaks preset when the model already answered, and composes an
// answer to prompt otherwise.
func (o *Orchestrator) answer(ctx context.Context, inv *invocation, prompt string, preset *string) (events.ReplyData, error) {
	inv.progress(events.StepAnswer)

	var text string
	if preset != nil {
		text = *preset
	} else {
		res, err := o.ai.Complete(ctx, ai.ChatRequest{
			System: answerPrompt,
			Name:   events.AssistantName,
			User:   prompt,
		})
		if err != nil {
			return nil, newError(KindUpstream, msgChatCompletion, err)
		}
		inv.usage = inv.usage.Add(res.Usage)
		if res.Content == "" {
			return nil, newError(KindUpstream, msgEmptyAnswer, nil)
		}
		text = res.Content
	}

	inv.progress(events.StepSpeech)
	audio, err := o.ai.Speech(ctx, text)
	if err != nil {
		return nil, newError(KindUpstream, msgSpeech, err)
	}

	art, err := o.artifacts.Save(ctx, media.KindAudio, inv.deviceID, "mp3", audio)
	if err != nil {
		return nil, newError(KindStorage, msgSaveAudio, err)
	}

	return events.Speech{Text: text, URL: art.URL}, nil
}
