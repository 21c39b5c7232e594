package agent

import (
	"strings"
	"unicode"
)

// chunk boundaries: sentence-ending punctuation across the supported
// languages, including the Greek ano teleia.
const terminators = ".!?;·…\n"

// Chunker slices a streamed reply into speakable sentence chunks. Text
// is never lost or duplicated: the concatenation of all returned chunks
// plus the Flush remainder equals the concatenation of all deltas.
type Chunker struct {
	min int // don't flush chunks shorter than this
	max int // force a flush at this length even mid-sentence
	buf []rune
}

// NewChunker creates a chunker. Defaults: min 10, max 150 runes.
func NewChunker(minLen, maxLen int) *Chunker {
	if minLen <= 0 {
		minLen = 10
	}
	if maxLen <= minLen {
		maxLen = 150
	}
	return &Chunker{min: minLen, max: maxLen}
}

// Write appends one delta and returns any chunks that became ready.
func (c *Chunker) Write(delta string) []string {
	c.buf = append(c.buf, []rune(delta)...)

	var out []string
	for len(c.buf) >= c.max {
		cut := c.splitPoint()
		out = append(out, string(c.buf[:cut]))
		c.buf = c.buf[cut:]
	}

	if cut := c.sentenceEnd(); cut >= c.min {
		out = append(out, string(c.buf[:cut]))
		c.buf = c.buf[cut:]
	}
	return out
}

// Flush returns whatever is buffered; call it when the stream ends.
func (c *Chunker) Flush() string {
	s := string(c.buf)
	c.buf = c.buf[:0]
	return s
}

// Pending reports the buffered rune count.
func (c *Chunker) Pending() int { return len(c.buf) }

// sentenceEnd returns the cut index after the last completed sentence:
// a terminator that ends the buffer or is followed by whitespace. The
// whitespace requirement keeps "3.14" intact. Zero when no sentence has
// completed yet.
func (c *Chunker) sentenceEnd() int {
	for i := len(c.buf) - 1; i >= 0; i-- {
		if !isTerminator(c.buf[i]) {
			continue
		}
		if i == len(c.buf)-1 || unicode.IsSpace(c.buf[i+1]) {
			return i + 1
		}
	}
	return 0
}

// splitPoint picks where to cut an over-long buffer: the last space
// inside the window, or the hard limit when the run has none.
func (c *Chunker) splitPoint() int {
	limit := c.max
	for i := limit - 1; i > c.min; i-- {
		if unicode.IsSpace(c.buf[i]) {
			return i + 1 // keep the space with the spoken chunk
		}
	}
	return limit
}

func isTerminator(r rune) bool {
	return strings.ContainsRune(terminators, r)
}
