// ABOUTME: OpenAI-backed implementation of transcription, chat, speech, and image generation
// ABOUTME: Wraps openai-go with a traced HTTP transport and per-call spans

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config selects endpoints and models.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	SpeechModel        string
	Voice              string
	ImageModel         string
	ImageSize          string
	RequestTimeout     time.Duration
	MaxRetries         int
}

// Client calls the OpenAI API.
type Client struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Client. Requests go through an OpenTelemetry-instrumented transport.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "openai " + r.Method + " " + r.URL.Path
			}),
		),
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	return &Client{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Transcribe converts audio to text. locale is an ISO-639-1 hint and may be empty.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, locale string) (text string, err error) {
	ctx, span := tracer.Start(ctx, "ai.transcribe", trace.WithAttributes(
		attribute.String("ai.model", c.cfg.TranscriptionModel),
		attribute.Int("ai.audio_bytes", len(audio)),
	))
	defer func() { endSpan(span, err) }()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, "audio/mpeg"),
		Model: openai.AudioModel(c.cfg.TranscriptionModel),
	}
	if locale != "" {
		params.Language = openai.String(locale)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}

// Complete runs one chat completion and returns its first choice.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (result *ChatResult, err error) {
	ctx, span := tracer.Start(ctx, "ai.chat_completion", trace.WithAttributes(
		attribute.String("ai.model", c.cfg.ChatModel),
		attribute.Int("ai.tools", len(req.Tools)),
	))
	defer func() { endSpan(span, err) }()

	system := openai.ChatCompletionSystemMessageParam{
		Content: openai.ChatCompletionSystemMessageParamContentUnion{
			OfString: param.NewOpt(req.System),
		},
	}
	if req.Name != "" {
		system.Name = param.NewOpt(req.Name)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfSystem: &system},
			openai.UserMessage(req.User),
		},
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        string(def.Name),
				Description: param.NewOpt(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt("auto"),
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	result = &ChatResult{
		FinishReason: choice.FinishReason,
		Content:      choice.Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	span.SetAttributes(
		attribute.String("ai.finish_reason", result.FinishReason),
		attribute.Int64("ai.prompt_tokens", result.Usage.PromptTokens),
		attribute.Int64("ai.completion_tokens", result.Usage.CompletionTokens),
	)
	return result, nil
}

// Speech synthesizes text into MP3 audio.
func (c *Client) Speech(ctx context.Context, text string) (audio []byte, err error) {
	ctx, span := tracer.Start(ctx, "ai.text_to_speech", trace.WithAttributes(
		attribute.String("ai.model", c.cfg.SpeechModel),
		attribute.Int("ai.text_length", len(text)),
	))
	defer func() { endSpan(span, err) }()

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.cfg.SpeechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(c.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech response was empty")
	}
	return audio, nil
}

// GenerateImage draws an image for prompt and returns the decoded PNG bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (img *Image, err error) {
	ctx, span := tracer.Start(ctx, "ai.generate_image", trace.WithAttributes(
		attribute.String("ai.model", c.cfg.ImageModel),
	))
	defer func() { endSpan(span, err) }()

	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.cfg.ImageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(c.cfg.ImageSize),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image response contained no images")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	revised := resp.Data[0].RevisedPrompt
	if revised == "" {
		revised = prompt
	}
	return &Image{Data: data, RevisedPrompt: revised}, nil
}
