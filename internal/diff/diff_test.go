package diff

import (
	"errors"
	"testing"
)

func TestApply(t *testing.T) {
	cases := []struct {
		name, from, to string
	}{
		{"empty to text", "", "Welcome to the wiki.\n"},
		{"text to empty", "Some text\nover two lines\n", ""},
		{"middle edit", "a\nb\nc\n", "a\nB\nc\n"},
		{"unicode", "naïve café\n", "naïve café, déjà vu\n"},
		{"identical", "same\n", "same\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			patch := FindPatches(c.from, c.to)
			if c.from == c.to && patch != "" {
				t.Fatalf("expected empty patch for identical texts, got %q", patch)
			}

			got, err := Apply(c.from, patch)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != c.to {
				t.Errorf("expected %q, got %q", c.to, got)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	if _, err := Apply("text", "@@ not a patch"); !errors.Is(err, ErrMalformedPatch) {
		t.Errorf("expected ErrMalformedPatch, got %v", err)
	}

	patch := FindPatches("The quick brown fox jumps over the lazy dog.", "The quick brown cat jumps over the lazy dog.")
	if _, err := Apply("0123456789", patch); !errors.Is(err, ErrPatchFailed) {
		t.Errorf("expected ErrPatchFailed, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	cases := []struct {
		name                string
		base, ours, theirs  string
		expected            string
		clean               bool
	}{
		{
			name:     "disjoint lines",
			base:     "a\nb\nc\nd\n",
			ours:     "A\nb\nc\nd\n",
			theirs:   "a\nb\nc\nD\n",
			expected: "A\nb\nc\nD\n",
			clean:    true,
		},
		{
			name:     "insertions into empty base",
			base:     "",
			ours:     "intro\n",
			theirs:   "references\n",
			expected: "intro\nreferences\n",
			clean:    true,
		},
		{
			name:     "insertions without trailing newline",
			base:     "",
			ours:     "intro",
			theirs:   "references",
			expected: "intro\nreferences",
			clean:    true,
		},
		{
			name:     "same change on both sides",
			base:     "a\nb\n",
			ours:     "a\nB\n",
			theirs:   "a\nB\n",
			expected: "a\nB\n",
			clean:    true,
		},
		{
			name:     "only theirs changed",
			base:     "a\nb\n",
			ours:     "a\nb\n",
			theirs:   "a\nb\nc\n",
			expected: "a\nb\nc\n",
			clean:    true,
		},
		{
			name:     "insertion at replacement boundary",
			base:     "a\nb\nc\n",
			ours:     "x\nb\nc\n",
			theirs:   "a\nnew\nb\nc\n",
			expected: "x\nnew\nb\nc\n",
			clean:    true,
		},
		{
			name:   "same line",
			base:   "line one\nline two\n",
			ours:   "line one, edited by A\nline two\n",
			theirs: "line one, edited by B\nline two\n",
			clean:  false,
		},
		{
			name:   "insertion inside replaced range",
			base:   "a\nb\nc\nd\n",
			ours:   "a\nx\nd\n",
			theirs: "a\nb\ninserted\nc\nd\n",
			clean:  false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			merged, ok := Merge(c.base, c.ours, c.theirs)
			if ok != c.clean {
				t.Fatalf("expected clean=%t, got %t (merged %q)", c.clean, ok, merged)
			}
			if ok && merged != c.expected {
				t.Errorf("expected %q, got %q", c.expected, merged)
			}
		})
	}
}
