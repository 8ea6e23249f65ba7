package services

import (
	"strings"
	"testing"

	"notebridge/internal/models"
)

func TestExtractTextPlainText(t *testing.T) {
	s := NewDocumentService(nil)
	got, err := s.ExtractText("notes.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want passthrough", got)
	}
}

func TestExtractTextRejectsEmptyFile(t *testing.T) {
	s := NewDocumentService(nil)
	if _, err := s.ExtractText("notes.txt", nil); err == nil {
		t.Error("empty upload should be rejected")
	}
}

func TestExtractTextRejectsOversizedFile(t *testing.T) {
	s := NewDocumentService(nil)
	big := make([]byte, maxUploadBytes+1)
	_, err := s.ExtractText("big.txt", big)
	if err == nil {
		t.Fatal("oversized upload should be rejected")
	}
	appErr := models.AsAppError(err)
	if appErr == nil || appErr.Code != models.CodeValidation {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestExtractTextUnsupportedExtension(t *testing.T) {
	s := NewDocumentService(nil)
	for _, name := range []string{"report.docx", "sheet.xlsx", "image.png"} {
		if _, err := s.ExtractText(name, []byte("data")); err == nil {
			t.Errorf("%s should be rejected", name)
		}
	}
}

func TestMarkdownToPlainText(t *testing.T) {
	got, err := markdownToPlainText([]byte("# Title\n\nSome **bold** text with [a link](https://example.com).\n"))
	if err != nil {
		t.Fatalf("markdownToPlainText: %v", err)
	}
	for _, marker := range []string{"#", "**", "<", ">"} {
		if strings.Contains(got, marker) {
			t.Errorf("markup %q survived: %q", marker, got)
		}
	}
	for _, word := range []string{"Title", "bold", "a link"} {
		if !strings.Contains(got, word) {
			t.Errorf("content %q lost: %q", word, got)
		}
	}
}

func TestStripHTMLTagsDecodesEntities(t *testing.T) {
	got := stripHTMLTags("<p>ham &amp; eggs &lt;cheap&gt;</p>")
	if !strings.Contains(got, "ham & eggs <cheap>") {
		t.Errorf("entities not decoded: %q", got)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "first   line\t here\n\n\n\nsecond paragraph\n"
	got := normalizeWhitespace(in)
	want := "first line here\n\nsecond paragraph"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestChunkDropsWhitespaceOnly(t *testing.T) {
	s := NewDocumentService(nil)
	chunks, err := s.Chunk("alpha\n\nbeta")
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is whitespace-only", i)
		}
	}
}

func TestChunkEmptyTextFails(t *testing.T) {
	s := NewDocumentService(nil)
	if _, err := s.Chunk("   \n\t  "); err == nil {
		t.Error("whitespace-only text should fail")
	}
}

func TestChunkLongTextSplits(t *testing.T) {
	s := NewDocumentService(nil)
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Meeting notes line with some recurring content for padding.\n")
	}
	chunks, err := s.Chunk(b.String())
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > ChunkSize+ChunkOverlap {
			t.Errorf("chunk %d length %d exceeds size+overlap", i, len(c))
		}
	}
}
