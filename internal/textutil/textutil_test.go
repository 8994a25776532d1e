package textutil_test

import (
	"testing"

	"petlabel/internal/textutil"
)

func TestDisplayTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pet_photo_001.jpg", "Pet Photo 001"},
		{"golden-retriever.png", "Golden Retriever"},
		{"images/cat.on.sofa.jpeg", "Cat On Sofa"},
		{"  ", ""},
		{"noext", "Noext"},
	}
	for _, tc := range cases {
		if got := textutil.DisplayTitle(tc.in); got != tc.want {
			t.Errorf("DisplayTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := textutil.SanitizeFileName(`a/b:c*d?.jpg`); got != "a-b-c-d.jpg" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
	if got := textutil.SanitizeFileName("  "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
