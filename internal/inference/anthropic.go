package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	flowerr "github.com/hpungsan/screenflow/internal/errors"
)

// Anthropic calls the Messages API with one user turn.
type Anthropic struct {
	model     string
	maxTokens int64
	opts      []option.RequestOption
	log       *slog.Logger
}

// NewAnthropic returns a transport for model. Extra options (base URL,
// HTTP client) are appended to every client it builds.
func NewAnthropic(model string, maxTokens int, logger *slog.Logger, opts ...option.RequestOption) *Anthropic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Anthropic{
		model:     model,
		maxTokens: int64(maxTokens),
		opts:      opts,
		log:       logger,
	}
}

// Infer sends blocks as a single user message. The credential is passed per
// call so a changed key takes effect without restarting.
func (a *Anthropic) Infer(ctx context.Context, credential string, blocks []Block) (string, error) {
	content, err := anthropicContent(blocks)
	if err != nil {
		return "", err
	}

	opts := append([]option.RequestOption{
		option.WithAPIKey(credential),
		option.WithMaxRetries(0),
	}, a.opts...)
	client := anthropic.NewClient(opts...)

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(content...)},
	})
	if err != nil {
		return "", a.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", flowerr.NewTransport(flowerr.ReasonMalformedPayload, "response contained no text content")
	}
	return sb.String(), nil
}

func anthropicContent(blocks []Block) ([]anthropic.ContentBlockParamUnion, error) {
	content := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			content = append(content, anthropic.NewTextBlock(b.Text))
		case BlockImage:
			content = append(content, anthropic.NewImageBlockBase64(b.MIMEType, base64.StdEncoding.EncodeToString(b.Data)))
		default:
			return nil, flowerr.NewTransport(flowerr.ReasonMalformedPayload, "unknown content block type: "+string(b.Type))
		}
	}
	return content, nil
}

// classify maps SDK errors onto transport reasons, keeping the upstream
// message verbatim.
func (a *Anthropic) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return flowerr.NewTransport(flowerr.ReasonUnavailable, err.Error())
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		a.log.Warn("inference request rejected", "status", apiErr.StatusCode, "error", err)
		return flowerr.NewTransport(reasonForStatus(apiErr.StatusCode), apiErr.Error())
	}

	a.log.Warn("inference request failed", "error", err)
	return flowerr.NewTransport(flowerr.ReasonUnavailable, err.Error())
}

func reasonForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return flowerr.ReasonInvalidCredential
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity, http.StatusNotFound:
		return flowerr.ReasonMalformedPayload
	default:
		return flowerr.ReasonUnavailable
	}
}
