package agent

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Chunks splits text into word-sized pieces: each is a word followed by its
// trailing whitespace. Leading whitespace stays on the first piece, so
// joining the pieces gives back text exactly.
func Chunks(text string) []string {
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && inSpace {
			if hasWord(text[start:i]) {
				chunks = append(chunks, text[start:i])
				start = i
			}
		}
		inSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

func hasWord(s string) bool {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if !unicode.IsSpace(r) {
			return true
		}
		s = s[size:]
	}
	return false
}

// streamer emits chunks on a channel until the context is cancelled.
type streamer struct {
	out   chan<- protocol.StreamChunk
	delay time.Duration
}

// send delivers c, or reports false once ctx is done.
func (s *streamer) send(ctx context.Context, c protocol.StreamChunk) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// words streams text as word chunks and returns how many were delivered
// and whether all of them were.
func (s *streamer) words(ctx context.Context, text string) (int, bool) {
	sent := 0
	for i, chunk := range Chunks(text) {
		if i > 0 && s.delay > 0 {
			t := time.NewTimer(s.delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return sent, false
			}
		}
		if !s.send(ctx, protocol.StreamChunk{Content: chunk}) {
			return sent, false
		}
		sent++
	}
	return sent, true
}
