// Package ocr turns identity document images into a normalized text corpus
// using Amazon Textract.
package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/fetcher"
)

// Client is the subset of the Textract API used for text detection.
type Client interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Extractor produces the lowercased corpus for a set of fetched documents.
type Extractor struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(client Client, timeout time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("ocr"),
	}
}

// CorpusFrom extracts text from every handle in input order and returns the
// space-joined, lowercased concatenation. A handle whose extraction fails
// contributes an empty string; downstream matchers rely on the corpus being
// lowercase and do no case folding of their own.
func (e *Extractor) CorpusFrom(ctx context.Context, handles []*fetcher.Handle) string {
	parts := make([]string, 0, len(handles))
	for _, h := range handles {
		text, err := e.extractOne(ctx, h)
		if err != nil {
			e.logger.Warn("text extraction failed, contributing empty text",
				zap.String("url", h.URL), zap.Error(err))
			text = ""
		}
		parts = append(parts, text)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func (e *Extractor) extractOne(ctx context.Context, h *fetcher.Handle) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	data, err := h.Bytes()
	if err != nil {
		return "", err
	}

	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(out.Blocks))
	for _, block := range out.Blocks {
		if block.BlockType == types.BlockTypeLine && block.Text != nil {
			lines = append(lines, *block.Text)
		}
	}
	return strings.Join(lines, " "), nil
}
