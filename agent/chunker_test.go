package agent

import (
	"math/rand"
	"strings"
	"testing"
)

func TestChunkerFlushesOnSentenceEnd(t *testing.T) {
	c := NewChunker(10, 150)

	var chunks []string
	chunks = append(chunks, c.Write("The lights are ")...)
	chunks = append(chunks, c.Write("now on.")...)
	chunks = append(chunks, c.Write(" Anything else?")...)

	want := []string{"The lights are now on.", " Anything else?"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
	if rest := c.Flush(); rest != "" {
		t.Errorf("Flush() = %q, want empty", rest)
	}
}

func TestChunkerHoldsShortSentences(t *testing.T) {
	c := NewChunker(10, 150)

	if chunks := c.Write("Yes."); len(chunks) != 0 {
		t.Fatalf("flushed a chunk below the minimum: %q", chunks)
	}
	if rest := c.Flush(); rest != "Yes." {
		t.Errorf("Flush() = %q, want %q", rest, "Yes.")
	}
}

func TestChunkerFlushesMidDeltaTerminator(t *testing.T) {
	c := NewChunker(10, 150)

	chunks := c.Write("It is 3 PM. It is sunny")
	if len(chunks) != 1 || chunks[0] != "It is 3 PM." {
		t.Fatalf("chunks = %q, want [%q]", chunks, "It is 3 PM.")
	}
	if rest := c.Flush(); rest != " It is sunny" {
		t.Errorf("Flush() = %q, want %q", rest, " It is sunny")
	}
}

func TestChunkerFlushesOnTerminatorSpaceDelta(t *testing.T) {
	c := NewChunker(10, 150)

	if chunks := c.Write("It is 3 PM"); len(chunks) != 0 {
		t.Fatalf("premature flush: %q", chunks)
	}
	chunks := c.Write(". ")
	if len(chunks) != 1 || chunks[0] != "It is 3 PM." {
		t.Fatalf("chunks = %q, want [%q]", chunks, "It is 3 PM.")
	}
	if chunks := c.Write("And the sky is clear"); len(chunks) != 0 {
		t.Fatalf("flushed without a terminator: %q", chunks)
	}
	if rest := c.Flush(); rest != " And the sky is clear" {
		t.Errorf("Flush() = %q, want %q", rest, " And the sky is clear")
	}
}

func TestChunkerKeepsDecimalsIntact(t *testing.T) {
	c := NewChunker(10, 150)

	if chunks := c.Write("Pi is about 3.14159 rounded down"); len(chunks) != 0 {
		t.Fatalf("split inside a number: %q", chunks)
	}
}

func TestChunkerForcesFlushAtMax(t *testing.T) {
	c := NewChunker(10, 40)

	long := strings.Repeat("word ", 20) // 100 runes, no terminator
	chunks := c.Write(long)
	if len(chunks) == 0 {
		t.Fatal("no forced flush on over-long run")
	}
	for _, chunk := range chunks {
		if n := len([]rune(chunk)); n > 40 {
			t.Errorf("chunk length %d exceeds max", n)
		}
	}
	total := strings.Join(chunks, "") + c.Flush()
	if total != long {
		t.Errorf("reassembly mismatch:\n got %q\nwant %q", total, long)
	}
}

func TestChunkerGreekTerminators(t *testing.T) {
	c := NewChunker(10, 150)
	chunks := c.Write("τα φώτα είναι αναμμένα·")
	if len(chunks) != 1 {
		t.Fatalf("chunks = %q, want one chunk ending at ano teleia", chunks)
	}
}

// Reassembly over randomized split points: no loss, no duplication,
// regardless of how the stream slices the text.
func TestChunkerReassembly(t *testing.T) {
	text := "First sentence. Second one is a bit longer! Is this the third? " +
		"Yes; and then a very long run without any punctuation that keeps going " +
		"and going until the limit forces a cut somewhere in the middle of it. End."

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		c := NewChunker(10, 60)
		var got strings.Builder

		remaining := text
		for len(remaining) > 0 {
			n := 1 + rng.Intn(12)
			if n > len(remaining) {
				n = len(remaining)
			}
			for _, chunk := range c.Write(remaining[:n]) {
				got.WriteString(chunk)
			}
			remaining = remaining[n:]
		}
		got.WriteString(c.Flush())

		if got.String() != text {
			t.Fatalf("trial %d reassembly mismatch:\n got %q\nwant %q", trial, got.String(), text)
		}
	}
}
