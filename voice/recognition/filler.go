package recognition

import (
	"strings"

	"github.com/talkcoach/voicekit/voice"
)

// maxFillerWords bounds how long a segment can be and still count as a
// filler. Hesitation markers are one or two tokens; anything longer is
// substantive speech.
const maxFillerWords = 2

// fillerVocabulary is the closed set of discourse fillers. Engines report
// these with low confidence, but for coaching they carry signal: hesitation
// is worth surfacing.
var fillerVocabulary = map[string]struct{}{
	"uh":      {},
	"um":      {},
	"er":      {},
	"erm":     {},
	"ah":      {},
	"eh":      {},
	"hm":      {},
	"hmm":     {},
	"mm":      {},
	"mhm":     {},
	"mm-hmm":  {},
	"uh-huh":  {},
	"huh":     {},
}

// Classify classifies a transcript as filler or normal speech. A segment is
// a filler only when every token is in the filler vocabulary.
func Classify(transcript string) voice.Classification {
	words := strings.Fields(strings.ToLower(transcript))
	if len(words) == 0 || len(words) > maxFillerWords {
		return voice.ClassNormal
	}

	for _, word := range words {
		word = strings.Trim(word, ".,!?;:'\"")
		if _, ok := fillerVocabulary[word]; !ok {
			return voice.ClassNormal
		}
	}
	return voice.ClassFiller
}
