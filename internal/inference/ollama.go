package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	flowerr "github.com/hpungsan/screenflow/internal/errors"
)

// Ollama calls a local Ollama server's chat endpoint with vision input.
type Ollama struct {
	client *resty.Client
	model  string
	log    *slog.Logger
}

// NewOllama returns a transport for baseURL (e.g. http://localhost:11434).
func NewOllama(baseURL, model string, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(5 * time.Minute),
		model: model,
		log:   logger,
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// Infer folds text blocks into the message content and sends images as
// base64 attachments. The credential, when set, is sent as a bearer token
// for servers behind an authenticating proxy.
func (o *Ollama) Infer(ctx context.Context, credential string, blocks []Block) (string, error) {
	msg := ollamaMessage{Role: "user"}
	var texts []string
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			texts = append(texts, b.Text)
		case BlockImage:
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(b.Data))
		default:
			return "", flowerr.NewTransport(flowerr.ReasonMalformedPayload, "unknown content block type: "+string(b.Type))
		}
	}
	msg.Content = strings.Join(texts, "\n\n")

	req := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ollamaChatRequest{Model: o.model, Messages: []ollamaMessage{msg}, Stream: false})
	if credential != "" {
		req.SetAuthToken(credential)
	}

	res, err := req.Post("/api/chat")
	if err != nil {
		o.log.Warn("ollama request failed", "error", err)
		return "", flowerr.NewTransport(flowerr.ReasonUnavailable, err.Error())
	}

	var body ollamaChatResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		if !res.IsSuccess() {
			return "", flowerr.NewTransport(reasonForStatus(res.StatusCode()), res.String())
		}
		return "", flowerr.NewTransport(flowerr.ReasonMalformedPayload, "unreadable response: "+err.Error())
	}

	if !res.IsSuccess() {
		o.log.Warn("ollama returned error", "status_code", res.StatusCode(), "error", body.Error)
		upstream := body.Error
		if upstream == "" {
			upstream = res.String()
		}
		return "", flowerr.NewTransport(reasonForStatus(res.StatusCode()), upstream)
	}
	if body.Message.Content == "" {
		return "", flowerr.NewTransport(flowerr.ReasonMalformedPayload, "response contained no text content")
	}
	return body.Message.Content, nil
}
