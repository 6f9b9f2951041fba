package textsplit

import (
	"strings"
	"testing"
)

func TestStripRepetitionKeepsCleanText(t *testing.T) {
	in := "oi tudo bem? fui almocar agora"
	if got := StripRepetition(in); got != in {
		t.Errorf("clean text must pass through, got %q", got)
	}
}

func TestStripRepetitionTruncatesLoop(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "pure loop keeps one occurrence",
			in:   strings.Repeat("abcde", 4),
			want: "abcde",
		},
		{
			name: "loop after a normal prefix",
			in:   "oi amiga " + strings.Repeat("tchau kkk ", 3),
			want: "oi amiga tchau kkk",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripRepetition(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSplitOnLineBreaks(t *testing.T) {
	got := Split("aham\neu tb pensei nisso\nmas sei la ne")
	want := []string{"aham", "eu tb pensei nisso", "mas sei la ne"}
	if len(got) != len(want) {
		t.Fatalf("expected %d parts, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitLongLineBySentences(t *testing.T) {
	line := strings.TrimSpace(strings.Repeat("essa frase tem um final aqui. ", 10))
	got := Split(line)
	if len(got) < 2 {
		t.Fatalf("expected the long line to split, got %v", got)
	}
	for i, part := range got {
		if len(part) > 120 {
			t.Errorf("part %d exceeds 120 chars: %q", i, part)
		}
	}
}

func TestSplitNeverBreaksURLs(t *testing.T) {
	url := "https://example.com/um.caminho.longo?q=1&x=2"
	line := strings.TrimSpace(strings.Repeat("ve isso aqui ", 9)) + " " + url
	found := false
	for _, part := range Split(line) {
		if strings.Contains(part, url) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected one part to carry the URL intact, got %v", Split(line))
	}
}

func TestSplitMergesTinyFragments(t *testing.T) {
	got := Split("essa musica nova ta muito boa demais\nsim")
	if len(got) != 1 {
		t.Fatalf("expected the tiny fragment to merge, got %v", got)
	}
	if got[0] != "essa musica nova ta muito boa demais sim" {
		t.Errorf("unexpected merged part %q", got[0])
	}
}

func TestSplitCapsPartCount(t *testing.T) {
	lines := make([]string, 8)
	for i := range lines {
		lines[i] = "uma linha inteira de conversa"
	}
	got := Split(strings.Join(lines, "\n"))
	if len(got) != 5 {
		t.Errorf("expected the part count capped at 5, got %d", len(got))
	}
}

func TestSplitCollapsesPipeRuns(t *testing.T) {
	got := Split("primeira parte||segunda parte")
	if len(got) != 2 {
		t.Fatalf("expected pipe run treated as a line break, got %v", got)
	}
	if got[0] != "primeira parte" || got[1] != "segunda parte" {
		t.Errorf("unexpected parts %v", got)
	}
}

func TestSplitEmptyInputReturnsInput(t *testing.T) {
	got := Split("")
	if len(got) != 1 {
		t.Errorf("expected a single part for empty input, got %v", got)
	}
}
