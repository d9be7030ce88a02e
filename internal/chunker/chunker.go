// Package chunker splits normalized text into token-bounded segments that
// end on sentence or paragraph boundaries wherever possible.
package chunker

import "strings"

// DefaultTokenLimit is the token budget per chunk.
const DefaultTokenLimit = 500

const boundaryChars = ".?!\n"

// Encode splits text into tokens: alternating runs of whitespace and
// non-whitespace. Concatenating the tokens reproduces the input exactly,
// which is what lets the chunker account for every token it consumes.
func Encode(text string) []string {
	var toks []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			toks = append(toks, text[start:i])
			start = i
			inSpace = space
		}
	}
	if start < len(text) {
		toks = append(toks, text[start:])
	}
	return toks
}

// Chunk splits text into segments of at most tokenLimit tokens. Each window
// is cut back to the last sentence terminator or newline when more tokens
// remain beyond it, and the cursor advances only by the tokens actually
// consumed, so the remainder after a boundary cut is never dropped.
// Internal newlines are flattened to spaces and empty segments discarded.
func Chunk(text string, tokenLimit int) []string {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	toks := Encode(text)

	var chunks []string
	cur := 0
	for cur < len(toks) {
		end := cur + tokenLimit
		if end > len(toks) {
			end = len(toks)
		}
		window := strings.Join(toks[cur:end], "")
		piece := window
		consumed := end - cur

		if end < len(toks) {
			if cut := strings.LastIndexAny(window, boundaryChars); cut >= 0 && cut+1 < len(window) {
				piece = window[:cut+1]
				consumed = consumeTokens(toks, cur, len(piece))
			}
		}

		clean := strings.TrimSpace(strings.ReplaceAll(piece, "\n", " "))
		if clean != "" {
			chunks = append(chunks, clean)
		}
		cur += consumed
	}
	return chunks
}

// consumeTokens walks the tokens starting at cur until n bytes are covered
// and returns how many whole tokens that is. When the cut lands inside a
// token, the unconsumed remainder is written back so the next window picks
// it up.
func consumeTokens(toks []string, cur, n int) int {
	acc := 0
	for k := cur; ; k++ {
		tl := len(toks[k])
		if acc+tl <= n {
			acc += tl
			if acc == n {
				return k - cur + 1
			}
			continue
		}
		toks[k] = toks[k][n-acc:]
		return k - cur
	}
}
