package hub

import (
	"fmt"
	"sort"

	"github.com/sahilm/fuzzy"
)

// knownRefs are the checkpoints the pipeline is known to work with. The
// registry may serve more; these seed ref completion and typo suggestions.
var knownRefs = []string{
	"moore/animate-anyone",
	"moore/animate-anyone-512",
	"openvino/animate-anyone-int8",
	"stable-diffusion/image-variations",
}

// KnownRefs returns the known checkpoint references, sorted.
func KnownRefs() []string {
	refs := append([]string(nil), knownRefs...)
	sort.Strings(refs)
	return refs
}

// Suggest returns up to three known refs resembling the given input, for
// "did you mean" output on unknown references.
func Suggest(input string) []string {
	matches := fuzzy.Find(input, knownRefs)
	n := len(matches)
	if n > 3 {
		n = 3
	}
	out := make([]string, 0, n)
	for _, m := range matches[:n] {
		out = append(out, m.Str)
	}
	return out
}

// SuggestError builds an unknown-ref error carrying suggestions when any
// known ref resembles the input.
func SuggestError(input string) error {
	suggestions := Suggest(input)
	if len(suggestions) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownRef, input)
	}
	return fmt.Errorf("%w: %q (did you mean %v?)", ErrUnknownRef, input, suggestions)
}
