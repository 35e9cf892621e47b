package dialog

import "testing"

func TestCleanForSpeechMarkdown(t *testing.T) {
	in := "## Answer\n\n* **Bold** point\n* _Another_ one\n1. `code here`\n[link text](https://example.com)"
	got := CleanForSpeech(in)
	want := "Answer Bold point Another one code here link text"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanForSpeechEmoji(t *testing.T) {
	got := CleanForSpeech("Sure thing! 😀🚀 Let's go.")
	want := "Sure thing! Let's go."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanForSpeechKeepsPunctuation(t *testing.T) {
	in := `Well: yes, no; maybe? "Quoted" (aside) - 1/2.`
	if got := CleanForSpeech(in); got != in {
		t.Errorf("basic punctuation must survive, got %q", got)
	}
}

func TestCleanForSpeechCollapsesWhitespace(t *testing.T) {
	got := CleanForSpeech("one\n\n  two\tthree   ")
	if got != "one two three" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}

func TestCleanForSpeechEmpty(t *testing.T) {
	if got := CleanForSpeech("🚀✨"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
