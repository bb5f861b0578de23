package capture

import "testing"

func TestFingerprintDetectsChange(t *testing.T) {
	a := Fingerprint("line one\nline two\n")
	b := Fingerprint("line one\nline two\n")
	c := Fingerprint("line one\nline two changed\n")

	if a != b {
		t.Error("identical text should produce identical fingerprints")
	}
	if a == c {
		t.Error("different text should produce different fingerprints")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"single no newline", "hello", 1},
		{"single with newline", "hello\n", 1},
		{"trailing newline", "a\nb\nc\n", 3},
		{"no trailing newline", "a\nb\nc", 3},
		{"interior blank", "a\n\nc\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitLines(tt.in); len(got) != tt.want {
				t.Errorf("SplitLines(%q) = %d lines, want %d", tt.in, len(got), tt.want)
			}
		})
	}
}

func TestFingerprintLinesPrefix(t *testing.T) {
	old := []string{"a", "b", "c"}
	extended := []string{"a", "b", "c", "d", "e"}
	rewritten := []string{"a", "X", "c", "d", "e"}

	oldHash := FingerprintLines(old, len(old))

	if FingerprintLines(extended, 3) != oldHash {
		t.Error("extension should preserve the prefix fingerprint")
	}
	if FingerprintLines(rewritten, 3) == oldHash {
		t.Error("in-place edit should change the prefix fingerprint")
	}
}

func TestFingerprintLinesClampsN(t *testing.T) {
	lines := []string{"a", "b"}
	if FingerprintLines(lines, 10) != FingerprintLines(lines, 2) {
		t.Error("n beyond the slice should clamp to its length")
	}
}
