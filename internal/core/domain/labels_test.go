package domain

import "testing"

func TestCanonicalLabelMapsKnownSynonyms(t *testing.T) {
	cases := map[string]string{
		"promotional":     "promotions",
		"promo":           "promotions",
		"job":             "job-application",
		"job application": "job-application",
		"interview":       "job-interview",
		"receipt":         "receipts",
		"bill":            "bills",
		"Invoice":         "finance",
		"  Bank ":         "banking",
	}
	for term, want := range cases {
		if got := CanonicalLabel(term); got != want {
			t.Fatalf("CanonicalLabel(%q) = %q, want %q", term, got, want)
		}
	}
}

func TestCanonicalLabelIsIdempotent(t *testing.T) {
	for _, term := range []string{"promotional", "job", "receipt", "unmapped-term"} {
		once := CanonicalLabel(term)
		if twice := CanonicalLabel(once); twice != once {
			t.Fatalf("CanonicalLabel not idempotent for %q: %q then %q", term, once, twice)
		}
	}
}

func TestCanonicalLabelPassesUnknownTermsThrough(t *testing.T) {
	if got := CanonicalLabel("Quarterly Report"); got != "quarterly report" {
		t.Fatalf("expected best-effort passthrough, got %q", got)
	}
	if got := CanonicalLabel(""); got != "" {
		t.Fatalf("expected empty for blank term, got %q", got)
	}
}

func TestLabelFromQueryPrefersLongestMatch(t *testing.T) {
	label, ok := LabelFromQuery("show my job application emails")
	if !ok || label != "job-application" {
		t.Fatalf("expected job-application, got %q ok=%v", label, ok)
	}

	label, ok = LabelFromQuery("any job rejections lately?")
	if !ok || label != "job-rejection" {
		t.Fatalf("expected job-rejection, got %q ok=%v", label, ok)
	}
}

func TestLabelFromQueryNoMatch(t *testing.T) {
	if label, ok := LabelFromQuery("what is the weather today?"); ok {
		t.Fatalf("expected no match, got %q", label)
	}
}

func TestSynonymTargetsAreAllowedLabels(t *testing.T) {
	for term, label := range labelSynonyms {
		if !IsAllowedLabel(label) {
			t.Fatalf("synonym %q maps to unknown label %q", term, label)
		}
	}
}
