package ingest

import (
	"strings"
	"unicode"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

const (
	// DefaultChunkSize is the target number of tokens per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of overlapping tokens between chunks.
	DefaultOverlap = 50
)

// splitSentences splits text into sentences using punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// Check it's end-of-sentence (next char is space/end or newline).
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// ChunkDocument splits a source document into overlapping chunks of
// ~chunkSize tokens. Token count is approximated as word count. A document
// shorter than one chunk yields a single chunk of the full text.
func ChunkDocument(doc domain.SourceDocument, chunkSize, overlap int) []Chunk {
	sentences := splitSentences(doc.Text)
	chunks := chunkSentences(doc, sentences, chunkSize, overlap)
	if len(chunks) == 0 {
		chunks = []Chunk{newChunk(doc, 0, strings.TrimSpace(doc.Text))}
	}
	return chunks
}

// chunkSentences groups sentences into chunks with the configured overlap.
func chunkSentences(doc domain.SourceDocument, sentences []string, chunkSize, overlap int) []Chunk {
	if len(sentences) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []Chunk
	idx := 0
	start := 0

	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			words := wordCount(sentences[end])
			if tokens+words > chunkSize && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			tokens += words
			end++
		}

		chunks = append(chunks, newChunk(doc, idx, buf.String()))
		idx++

		if end == len(sentences) {
			break
		}

		// Move start back by overlap amount.
		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < overlap {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			// Ensure forward progress.
			start = end
		} else {
			start = newStart
		}
	}
	return chunks
}

func newChunk(doc domain.SourceDocument, idx int, text string) Chunk {
	return Chunk{
		SourceID:  doc.ID,
		Index:     idx,
		Text:      text,
		Domain:    doc.Domain,
		UserScope: doc.UserScope,
		Category:  doc.Category,
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
