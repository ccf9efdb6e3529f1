package voice

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// defaultNameThreshold is the minimum Jaro-Winkler similarity for a
// phonetically matching phrase to be rewritten to a host name.
const defaultNameThreshold = 0.80

// NameCorrector rewrites misheard host names in a transcript, so that
// "lunar veil" becomes "Luna Vale" before the line reaches the dialogue
// model.
//
// A phrase of as many words as a host name is rewritten when its Double
// Metaphone codes overlap the name's codes and the Jaro-Winkler similarity of
// the two strings reaches the threshold. A NameCorrector is read-only after
// construction and safe for concurrent use.
type NameCorrector struct {
	names     []hostName
	threshold float64
}

type hostName struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// NewNameCorrector returns a corrector for names. A threshold outside (0, 1]
// selects the default.
func NewNameCorrector(names []string, threshold float64) *NameCorrector {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultNameThreshold
	}
	c := &NameCorrector{threshold: threshold}
	for _, n := range names {
		lower := strings.ToLower(strings.TrimSpace(n))
		tokens := strings.Fields(lower)
		if len(tokens) == 0 {
			continue
		}
		c.names = append(c.names, hostName{
			canonical: strings.Join(strings.Fields(n), " "),
			lower:     strings.Join(tokens, " "),
			tokens:    tokens,
			codes:     codesFor(tokens),
		})
	}
	return c
}

// Correct returns text with every recognised host name spelled canonically.
// Punctuation around a replaced phrase is kept.
func (c *NameCorrector) Correct(text string) string {
	if c == nil || len(c.names) == 0 {
		return text
	}
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		n, name, ok := c.matchAt(words[i:])
		if !ok {
			out = append(out, words[i])
			i++
			continue
		}
		lead, _, _ := splitWord(words[i])
		_, _, trail := splitWord(words[i+n-1])
		out = append(out, lead+name+trail)
		i += n
	}
	return strings.Join(out, " ")
}

// matchAt reports the best host name matching a prefix of words.
func (c *NameCorrector) matchAt(words []string) (int, string, bool) {
	var (
		bestLen   int
		bestName  string
		bestScore float64
	)
	for _, h := range c.names {
		n := len(h.tokens)
		if n > len(words) {
			continue
		}
		tokens := make([]string, 0, n)
		for _, w := range words[:n] {
			_, core, _ := splitWord(w)
			if core == "" {
				break
			}
			tokens = append(tokens, strings.ToLower(core))
		}
		if len(tokens) != n {
			continue
		}
		phrase := strings.Join(tokens, " ")
		if !overlap(codesFor(tokens), h.codes) {
			continue
		}
		score := matchr.JaroWinkler(phrase, h.lower, false)
		if n > 1 {
			if s := matchr.JaroWinkler(strings.Join(tokens, ""), strings.Join(h.tokens, ""), false); s > score {
				score = s
			}
		}
		if score >= c.threshold && score > bestScore {
			bestLen, bestName, bestScore = n, h.canonical, score
		}
	}
	return bestLen, bestName, bestLen > 0
}

// splitWord splits w into its leading punctuation, the word itself and its
// trailing punctuation.
func splitWord(w string) (lead, core, trail string) {
	start := strings.IndexFunc(w, isWordRune)
	if start < 0 {
		return w, "", ""
	}
	end := strings.LastIndexFunc(w, isWordRune)
	_, size := utf8.DecodeRuneInString(w[end:])
	return w[:start], w[start : end+size], w[end+size:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
