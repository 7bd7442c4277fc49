// Package rag implements knowledge-base indexing and retrieval.
package rag

import "strings"

// Chunker splits text into overlapping chunks on the best available
// boundary. Separators are tried in order; the empty separator is a hard
// rune cut and always terminates the recursion.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

// DefaultSeparators prefer paragraph, then line, then CJK sentence
// punctuation, then space.
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", "；", "，", " ", ""}

// NewChunker returns a chunker with the standard 500/100 geometry.
func NewChunker() *Chunker {
	return &Chunker{
		Size:       500,
		Overlap:    100,
		Separators: DefaultSeparators,
	}
}

// Split chunks text. Chunk lengths are measured in runes so CJK text is not
// cut three times shorter than Latin text.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	chunks := c.splitText(text, c.Separators)
	out := chunks[:0]
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Chunker) splitText(text string, seps []string) []string {
	if runeLen(text) <= c.Size {
		return []string{text}
	}

	// pick the first separator present in the text
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = hardCut(text, c.Size)
	} else {
		parts := strings.Split(text, sep)
		splits = make([]string, 0, len(parts))
		for i, p := range parts {
			if i < len(parts)-1 {
				p += sep // keep the boundary with its sentence
			}
			if p != "" {
				splits = append(splits, p)
			}
		}
	}

	// recurse into splits still over budget, then merge with overlap
	var final []string
	for _, s := range splits {
		if runeLen(s) > c.Size && rest != nil {
			final = append(final, c.splitText(s, rest)...)
		} else if runeLen(s) > c.Size {
			final = append(final, hardCut(s, c.Size)...)
		} else {
			final = append(final, s)
		}
	}
	return c.merge(final)
}

// merge packs adjacent splits into chunks of at most Size runes, carrying
// Overlap runes of trailing context into the next chunk.
func (c *Chunker) merge(splits []string) []string {
	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(window, ""))
		// retain tail splits for overlap
		for total > c.Overlap && len(window) > 1 {
			total -= runeLen(window[0])
			window = window[1:]
		}
		if total > c.Overlap {
			window = nil
			total = 0
		}
	}

	for _, s := range splits {
		n := runeLen(s)
		if total+n > c.Size && total > 0 {
			flush()
		}
		window = append(window, s)
		total += n
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

func hardCut(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
