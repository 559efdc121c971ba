package diff

import (
	"errors"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	ErrMalformedPatch = errors.New("malformed patch")
	ErrPatchFailed    = errors.New("patch does not apply")
)

var dmp *diffmatchpatch.DiffMatchPatch

func init() {
	dmp = diffmatchpatch.New()
}

// FindPatches returns the textual patch that transforms text1 into text2. Identical texts yield an empty patch.
func FindPatches(text1, text2 string) string {
	if text1 == text2 {
		return ""
	}
	diffs := dmp.DiffMain(text1, text2, false)
	return dmp.PatchToText(dmp.PatchMake(text1, diffs))
}

// Apply applies a patch produced by FindPatches to text. Every hunk must apply; a partially applied patch is
// reported as ErrPatchFailed and the text is left untouched.
func Apply(text, patch string) (string, error) {
	if patch == "" {
		return text, nil
	}

	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedPatch, err)
	}

	result, applied := dmp.PatchApply(patches, text)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("%w: hunk %d", ErrPatchFailed, i+1)
		}
	}
	return result, nil
}
