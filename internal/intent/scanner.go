// Package intent recovers tool intents from batch-mode reply text.
//
// The batch pipeline has no structured function-calling surface, so
// the assistant is prompted to mark actions either with an explicit
// tag line ("[action:play] some song") or by leading the reply with a
// cue phrase ("search for ..."). Cue words are matched phonetically
// (Double Metaphone plus Jaro-Winkler) so recognition drift like
// "serch" or "pley" still triggers. This is a deliberately weaker
// contract than structured calls: prose that happens to start with a
// cue word will trigger, and anything else will not.
package intent

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/lyra-voice/lyra/internal/action"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// cueKinds maps canonical cue words to action kinds. Phonetic matching
// runs against these keys.
var cueKinds = map[string]action.Kind{
	"search":  action.KindSearch,
	"google":  action.KindSearch,
	"lookup":  action.KindSearch,
	"find":    action.KindSearch,
	"youtube": action.KindVideo,
	"video":   action.KindVideo,
	"watch":   action.KindVideo,
	"play":    action.KindMusic,
	"music":   action.KindMusic,
}

// tagPattern matches the explicit "[action:<cue>] <query>" form
// anywhere in the reply.
var tagPattern = regexp.MustCompile(`(?i)\[action:([a-z]+)\]\s*(.+)`)

// leadFiller are words allowed before the cue in a leading cue phrase.
var leadFiller = map[string]struct{}{
	"open": {}, "please": {}, "okay": {}, "ok": {}, "now": {}, "sure": {},
}

// queryFiller are words stripped between the cue and the query.
var queryFiller = map[string]struct{}{
	"for": {}, "up": {}, "me": {}, "a": {}, "the": {}, "some": {}, "to": {}, "of": {},
}

// Scanner extracts at most one action.Descriptor from a reply.
// A Scanner is read-only after construction and safe for concurrent use.
type Scanner struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Option is a functional option for configuring a Scanner.
type Option func(*Scanner)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required
// for a phonetically matched cue. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Scanner) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when
// no phonetic code overlaps and the scanner falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Scanner) { s.fuzzyThreshold = threshold }
}

// NewScanner returns a Scanner with the supplied options applied.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan inspects reply and returns the first action it carries. The tag
// form wins over a leading cue phrase; at most one descriptor is ever
// returned per reply.
func (s *Scanner) Scan(reply string) (action.Descriptor, bool) {
	if m := tagPattern.FindStringSubmatch(reply); m != nil {
		if kind, ok := s.matchCue(m[1], true); ok {
			query := strings.TrimSpace(firstLine(m[2]))
			if query != "" {
				return action.Descriptor{Kind: kind, Query: query}, true
			}
		}
	}
	return s.scanLeadingCue(reply)
}

// scanLeadingCue checks whether the reply's first line starts with a
// cue phrase, allowing one filler word before the cue.
func (s *Scanner) scanLeadingCue(reply string) (action.Descriptor, bool) {
	words := strings.Fields(firstLine(reply))

	cueIdx := -1
	for i, w := range words {
		if i > 1 {
			break
		}
		norm := normalizeWord(w)
		if _, ok := cueKinds[norm]; ok || !isLeadFiller(norm) {
			cueIdx = i
			break
		}
	}
	if cueIdx < 0 || cueIdx >= len(words) {
		return action.Descriptor{}, false
	}

	// A leading cue has no tag to vouch for it, so the pure-similarity
	// fallback is not allowed here: too many ordinary words sit within
	// Jaro-Winkler reach of a cue.
	kind, ok := s.matchCue(normalizeWord(words[cueIdx]), false)
	if !ok {
		return action.Descriptor{}, false
	}

	rest := words[cueIdx+1:]
	for len(rest) > 0 {
		if _, filler := queryFiller[normalizeWord(rest[0])]; !filler {
			break
		}
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return action.Descriptor{}, false
	}
	return action.Descriptor{Kind: kind, Query: strings.Join(rest, " ")}, true
}

// matchCue resolves word against the cue table: exact lookup first,
// then Double Metaphone overlap ranked by Jaro-Winkler, then, when
// allowFuzzy is set, a pure Jaro-Winkler fallback with the stricter
// fuzzy threshold.
func (s *Scanner) matchCue(word string, allowFuzzy bool) (action.Kind, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return action.KindUnknown, false
	}
	if kind, ok := cueKinds[word]; ok {
		return kind, true
	}

	wp, ws := matchr.DoubleMetaphone(word)

	bestKind := action.KindUnknown
	bestScore := 0.0
	bestPhonetic := false

	for cue, kind := range cueKinds {
		cp, cs := matchr.DoubleMetaphone(cue)
		phonetic := codesOverlap(wp, ws, cp, cs)
		score := matchr.JaroWinkler(word, cue, false)

		switch {
		case phonetic && score >= s.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestKind, bestScore, bestPhonetic = kind, score, true
			}
		case allowFuzzy && !phonetic && !bestPhonetic && score >= s.fuzzyThreshold:
			if score > bestScore {
				bestKind, bestScore = kind, score
			}
		}
	}
	return bestKind, bestKind != action.KindUnknown
}

// codesOverlap reports whether the two Double Metaphone code pairs
// share a non-empty code.
func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || (bs != "" && a == bs) {
			return true
		}
	}
	return false
}

func isLeadFiller(word string) bool {
	_, ok := leadFiller[word]
	return ok
}

// normalizeWord lowercases and strips trailing punctuation.
func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,:;!?\"'"))
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
