package testutils

import (
	"math/rand/v2"
	"strings"
)

var (
	subjects   = []string{"The committee", "Our team", "The new model", "A local farmer", "The museum", "Every visitor", "The river", "Her brother"}
	verbs      = []string{"approved", "described", "repaired", "visited", "ignored", "measured", "painted", "announced"}
	objects    = []string{"the annual budget", "an old bridge", "the harvest festival", "a quiet village", "the long report", "several new rules", "the morning train", "a small garden"}
	qualifiers = []string{"yesterday", "after a long debate", "without any delay", "in early spring", "for the first time", "despite the rain"}
)

// glossary maps source words to pseudo-translations. Unknown words are
// reversed so that targets differ from sources but stay deterministic.
var glossary = map[string]string{
	"the": "die", "The": "Die", "a": "ein", "A": "Ein", "an": "ein",
	"new": "neue", "old": "alte", "small": "kleine", "long": "lange",
	"for": "für", "in": "im", "after": "nach", "first": "erste",
	"time": "Mal", "without": "ohne", "any": "jede", "despite": "trotz",
}

func sourceSentence(rng *rand.Rand) string {
	parts := []string{
		subjects[rng.IntN(len(subjects))],
		verbs[rng.IntN(len(verbs))],
		objects[rng.IntN(len(objects))],
	}
	if rng.IntN(2) == 0 {
		parts = append(parts, qualifiers[rng.IntN(len(qualifiers))])
	}
	return strings.Join(parts, " ") + "."
}

func translateAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		if t, ok := glossary[w]; ok {
			out[i] = t
			continue
		}
		r := []rune(w)
		for a, b := 0, len(r)-1; a < b; a, b = a+1, b-1 {
			r[a], r[b] = r[b], r[a]
		}
		out[i] = string(r)
	}
	return out
}

func translate(words []string) string {
	return strings.Join(translateAll(words), " ")
}
