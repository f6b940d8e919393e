package langdetect

import "testing"

func TestDetectShortSampleIsUndetected(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "G7", "Oil up"} {
		if code, ok := Detect(in); ok {
			t.Fatalf("Detect(%q) = %q, expected no confident result", in, code)
		}
		if !IsEnglish(in) {
			t.Fatalf("IsEnglish(%q) should default to true", in)
		}
	}
}

func TestDetectHeadlines(t *testing.T) {
	t.Parallel()

	if code, ok := Detect("The central bank raised interest rates again on Thursday"); !ok || code != "en" {
		t.Fatalf("expected en, got %q ok=%v", code, ok)
	}
	if IsEnglish("Die Bundesregierung beschließt neue Maßnahmen gegen die Inflation") {
		t.Fatalf("expected German headline to be rejected")
	}
}
