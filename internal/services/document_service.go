package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/yuin/goldmark"

	"notebridge/internal/models"
)

const (
	// ChunkSize / ChunkOverlap match the recursive splitter settings used
	// everywhere chunks end up in the vector store.
	ChunkSize    = 1000
	ChunkOverlap = 200

	maxPDFPages          = 100
	maxExtractedTextSize = 1024 * 1024
	maxUploadBytes       = 20 * 1024 * 1024
)

// DocumentService turns knowledge-base uploads into persistent collection
// rows: extract plain text per format, chunk, embed, insert.
type DocumentService struct {
	vectors  *VectorStore
	splitter textsplitter.RecursiveCharacter
}

func NewDocumentService(vectors *VectorStore) *DocumentService {
	return &DocumentService{
		vectors: vectors,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(ChunkSize),
			textsplitter.WithChunkOverlap(ChunkOverlap),
		),
	}
}

// ExtractText pulls plain text out of an upload. Supported: .pdf, .md, .txt.
func (s *DocumentService) ExtractText(fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", models.NewValidationError("file is empty")
	}
	if len(data) > maxUploadBytes {
		return "", models.NewValidationError(fmt.Sprintf("file exceeds the %dMB upload limit", maxUploadBytes/(1024*1024)))
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return extractPDFText(data)
	case ".md", ".markdown":
		return markdownToPlainText(data)
	case ".txt", "":
		return string(data), nil
	default:
		return "", models.NewValidationError("unsupported file type; use pdf, md or txt")
	}
}

// Chunk splits text with the 1000/200 recursive splitter, dropping
// whitespace-only chunks.
func (s *DocumentService) Chunk(text string) ([]string, error) {
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	if len(out) == 0 {
		return nil, models.NewValidationError("no extractable text in upload")
	}
	return out, nil
}

// Upload processes one file into a persistent collection owned by userID
// and returns the resulting collection stats.
func (s *DocumentService) Upload(ctx context.Context, userID, collectionName, fileName string, data []byte) (*models.UploadResponse, error) {
	text, err := s.ExtractText(fileName, data)
	if err != nil {
		return nil, err
	}
	return s.UploadText(ctx, userID, collectionName, fileName, text)
}

// UploadText chunks raw text into a persistent collection.
func (s *DocumentService) UploadText(ctx context.Context, userID, collectionName, sourceName, text string) (*models.UploadResponse, error) {
	if collectionName == "" {
		return nil, models.NewValidationError("collection_name is required")
	}

	chunks, err := s.Chunk(text)
	if err != nil {
		return nil, err
	}

	metadatas := make([]map[string]interface{}, len(chunks))
	for i := range chunks {
		metadatas[i] = map[string]interface{}{
			"source":      sourceName,
			"chunk_index": i,
		}
	}

	count, err := s.vectors.AddDocuments(ctx, AddDocumentsParams{
		CollectionName: collectionName,
		CollectionType: models.CollectionPersistent,
		Texts:          chunks,
		Metadatas:      metadatas,
		UserID:         &userID,
	})
	if err != nil {
		return nil, err
	}

	stats, err := s.vectors.Stats(ctx, collectionName, &userID)
	if err != nil {
		return nil, err
	}
	return &models.UploadResponse{
		Success:    true,
		FileName:   sourceName,
		ChunkCount: count,
		Stats:      *stats,
	}, nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", models.NewValidationError("invalid PDF file")
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", models.NewValidationError("PDF has no pages")
	}
	if totalPages > maxPDFPages {
		return "", models.NewValidationError(fmt.Sprintf("PDF has %d pages, max is %d", totalPages, maxPDFPages))
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(textReader, maxExtractedTextSize))
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return normalizeWhitespace(string(raw)), nil
}

// markdownToPlainText renders markdown to HTML with goldmark and strips
// the tags, so headings and emphasis markers don't pollute the chunks.
func markdownToPlainText(data []byte) (string, error) {
	var html bytes.Buffer
	if err := goldmark.New().Convert(data, &html); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return normalizeWhitespace(stripHTMLTags(html.String())), nil
}

func stripHTMLTags(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	text := b.String()
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	return text
}

// normalizeWhitespace collapses runs of spaces while keeping paragraph
// breaks, which the splitter uses as boundaries.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		fields := strings.FieldsFunc(line, unicode.IsSpace)
		if len(fields) == 0 {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
