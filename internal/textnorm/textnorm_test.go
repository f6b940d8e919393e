package textnorm

import "testing"

func TestCanonicalURL_StripsTrackingAndNormalizes(t *testing.T) {
	t.Parallel()

	canonical, host := CanonicalURL("https://Example.COM:443/news/path/?utm_source=abc&fbclid=123&b=2&a=1#top")
	if canonical != "https://example.com/news/path?a=1&b=2" {
		t.Fatalf("unexpected canonical url: %q", canonical)
	}
	if host != "example.com" {
		t.Fatalf("unexpected host: %q", host)
	}
}

func TestCanonicalURL_Invalid(t *testing.T) {
	t.Parallel()

	canonical, host := CanonicalURL("not a url")
	if canonical != "" || host != "" {
		t.Fatalf("expected empty result for invalid URL, got canonical=%q host=%q", canonical, host)
	}
}

func TestTitleKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		words int
		chars int
		want  string
	}{
		{"The Company Launches a Wind Project in the North Sea!", 12, 120, "company launches wind project north sea"},
		{"  Breaking: U.S. rates -- rise again? ", 12, 120, "u rates rise"},
		{"Acme launches orbital drone platform today", 3, 120, "acme launches orbital"},
		{"Acme launches orbital drone", 12, 14, "acme launches"},
		{"Supercalifragilistic", 12, 5, "super"},
		{"The of and", 12, 120, ""},
	}

	for _, tc := range cases {
		if got := TitleKey(tc.title, tc.words, tc.chars); got != tc.want {
			t.Fatalf("TitleKey(%q): got %q want %q", tc.title, got, tc.want)
		}
	}
}

func TestKeySimilarity(t *testing.T) {
	t.Parallel()

	if got := KeySimilarity("fed raises rates", "fed raises rates"); got != 1 {
		t.Fatalf("identical keys should score 1, got %f", got)
	}
	near := KeySimilarity("fed raises interest rates quarter point", "fed raises interest rate quarter point")
	if near < 0.86 {
		t.Fatalf("expected near-duplicate keys above threshold, got %f", near)
	}
	far := KeySimilarity("fed raises interest rates", "storm hits coastal towns")
	if far >= 0.86 {
		t.Fatalf("expected unrelated keys below threshold, got %f", far)
	}
}

func TestFold(t *testing.T) {
	t.Parallel()

	if Fold("Fed Raises Rates!") != Fold("fed raises rates") {
		t.Fatalf("expected case and punctuation to fold away")
	}
}

func TestHostMatches(t *testing.T) {
	t.Parallel()

	if !HostMatches("www.news.google.com", "news.google.com") {
		t.Fatalf("expected www prefix to be ignored")
	}
	if !HostMatches("eu.businesswire.com", "businesswire.com") {
		t.Fatalf("expected subdomain match")
	}
	if HostMatches("notbusinesswire.com", "businesswire.com") {
		t.Fatalf("unexpected suffix match without dot boundary")
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	if got := Slug("The Guardian (UK)"); got != "the-guardian-uk" {
		t.Fatalf("unexpected slug: %q", got)
	}
}
