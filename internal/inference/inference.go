// Package inference sends a built request to a multimodal model and returns
// the analysis text.
package inference

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hpungsan/screenflow/internal/config"
)

// BlockType distinguishes request content blocks.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// Block is one piece of request content. Text blocks carry Text; image
// blocks carry MIMEType and raw Data.
type Block struct {
	Type     BlockType
	Text     string
	MIMEType string
	Data     []byte
}

// TextBlock returns a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ImageBlock returns an image content block.
func ImageBlock(mimeType string, data []byte) Block {
	return Block{Type: BlockImage, MIMEType: mimeType, Data: data}
}

// Transport performs one inference call. Failures are *errors.FlowError
// with code TRANSPORT; implementations never retry.
type Transport interface {
	Infer(ctx context.Context, credential string, blocks []Block) (string, error)
}

// New returns the transport selected by cfg.Provider.
func New(cfg *config.Config, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderAnthropic, "":
		return NewAnthropic(cfg.Model, cfg.MaxTokens, logger), nil
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaURL, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
