package pageindex

import (
	"strings"
	"unicode"
)

// CountTokens approximates the token count of text from its words and
// punctuation.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	// Count words and punctuation as rough token estimate
	// Most tokenizers produce ~1.3 tokens per word on average
	words := strings.Fields(text)
	wordCount := len(words)

	// Add extra for punctuation (typically separate tokens)
	punctCount := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punctCount++
		}
	}

	// Approximate: words * 1.3 + punctuation
	return int(float64(wordCount)*1.3) + punctCount/2
}

// limitTokens keeps the leading part of text that fits in maxTokens.
func limitTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || CountTokens(text) <= maxTokens {
		return text
	}
	if chunks := SplitByTokens(text, maxTokens); len(chunks) > 0 {
		text = chunks[0]
	}
	if CountTokens(text) <= maxTokens {
		return text
	}

	// One sentence over budget: cut at a word boundary
	words := strings.Fields(text)
	n := min(len(words), int(float64(maxTokens)/1.3))
	return strings.Join(words[:n], " ")
}

// SplitByTokens splits text into chunks of approximately maxTokens each.
func SplitByTokens(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}

	tokens := CountTokens(text)
	if tokens <= maxTokens {
		return []string{text}
	}

	// Split by paragraphs first, then by sentences if needed
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var currentChunk strings.Builder
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := CountTokens(para)

		if currentTokens+paraTokens > maxTokens && currentChunk.Len() > 0 {
			// Save current chunk and start new one
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			currentChunk.Reset()
			currentTokens = 0
		}

		if paraTokens > maxTokens {
			// Paragraph too large, split by sentences
			sentences := splitIntoSentences(para)
			for _, sent := range sentences {
				sentTokens := CountTokens(sent)
				if currentTokens+sentTokens > maxTokens && currentChunk.Len() > 0 {
					chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
					currentChunk.Reset()
					currentTokens = 0
				}
				if currentChunk.Len() > 0 {
					currentChunk.WriteString(" ")
				}
				currentChunk.WriteString(sent)
				currentTokens += sentTokens
			}
		} else {
			if currentChunk.Len() > 0 {
				currentChunk.WriteString("\n\n")
			}
			currentChunk.WriteString(para)
			currentTokens += paraTokens
		}
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

// splitIntoSentences splits text into sentences.
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	// Handle remaining text
	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}
