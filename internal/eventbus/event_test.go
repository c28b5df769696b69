package eventbus

import "testing"

func TestParsePageDeleted(t *testing.T) {
	t.Parallel()

	got, err := parsePageDeleted("42,7,Getting Started")
	if err != nil {
		t.Fatalf("parsePageDeleted() error = %v", err)
	}
	want := PageDeleted{GuildID: 42, PageID: 7, Title: "Getting Started"}
	if got != want {
		t.Errorf("parsePageDeleted() = %+v, want %+v", got, want)
	}
}

func TestParsePageDeleted_TitleContainsCommas(t *testing.T) {
	t.Parallel()

	got, err := parsePageDeleted("42,7,Rules, Guidelines, and Etiquette")
	if err != nil {
		t.Fatalf("parsePageDeleted() error = %v", err)
	}
	want := PageDeleted{GuildID: 42, PageID: 7, Title: "Rules, Guidelines, and Etiquette"}
	if got != want {
		t.Errorf("parsePageDeleted() = %+v, want %+v", got, want)
	}
}

func TestParsePageDeleted_Malformed(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"", "42", "42,7", "notanumber,7,Title"} {
		if _, err := parsePageDeleted(payload); err == nil {
			t.Errorf("parsePageDeleted(%q) expected error, got nil", payload)
		}
	}
}
