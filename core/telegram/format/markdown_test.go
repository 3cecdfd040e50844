package format

import "testing"

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("e_Jaadui *Pitara* [x] `y`", MarkdownV1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "e\\_Jaadui \\*Pitara\\* \\[x] \\`y\\`"
	if got != want {
		t.Fatalf("EscapeMarkdown V1 = %q, want %q", got, want)
	}
}

func TestMustEscapeV1LeavesDigitsAndPunctuation(t *testing.T) {
	if got, want := MustEscapeV1("v1.5 (beta)! a-b=c"), "v1.5 (beta)! a-b=c"; got != want {
		t.Fatalf("MustEscapeV1 = %q, want %q", got, want)
	}
}

func TestEscapeMarkdownUnsupported(t *testing.T) {
	if _, err := EscapeMarkdown("x", 2); err == nil {
		t.Fatal("expected error for unknown version")
	}
}
