package parser

import (
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - review\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "review" {
		t.Errorf("tags = %v, want [go review]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha", "#flashcards"},
	}
	body := "Some text #beta and #alpha again.\n```\n#notatag\n```\n"
	tags := extractTags(body, fm)
	if len(tags) != 3 || tags[0] != "alpha" || tags[1] != "flashcards" || tags[2] != "beta" {
		t.Errorf("tags = %v, want [alpha flashcards beta]", tags)
	}
}

func TestExtractTags_FrontmatterString(t *testing.T) {
	tags := extractTags("", map[string]any{"tags": "review, math"})
	if len(tags) != 2 || tags[0] != "review" || tags[1] != "math" {
		t.Errorf("tags = %v", tags)
	}
}

func TestHasTag(t *testing.T) {
	cases := []struct {
		tags []string
		want []string
		ok   bool
	}{
		{[]string{"math", "review"}, []string{"#review"}, true},
		{[]string{"review/math"}, []string{"review"}, true},
		{[]string{"reviewed"}, []string{"review"}, false},
		{nil, []string{"review"}, false},
	}
	for _, c := range cases {
		if got := HasTag(c.tags, c.want...); got != c.ok {
			t.Errorf("HasTag(%v, %v) = %v, want %v", c.tags, c.want, got, c.ok)
		}
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	fm := map[string]any{"title": "FM Title"}
	body := "# H1 Title\ntext"
	title := deriveTitle(fm, body)
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestCards_LineNumbersIncludeFrontmatter(t *testing.T) {
	input := []byte("---\ntags: [flashcards]\n---\nIntro\nCapital of France::Paris\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Cards) != 1 {
		t.Fatalf("cards = %+v", r.Cards)
	}
	c := r.Cards[0]
	if c.LineNo != 4 || c.Kind != KindInline || c.Front != "Capital of France" || c.Back != "Paris" || c.Faces != 1 {
		t.Errorf("card = %+v", c)
	}
	if c.Hash == "" {
		t.Error("card has no hash")
	}
}

func TestCards_AllSyntaxes(t *testing.T) {
	body := "go::a language\n" +
		"\n" +
		"cat:::Katze\n" +
		"\n" +
		"Q: What is\nthe answer?\nA: 42\nand more\n" +
		"\n" +
		"The ==mitochondria== is the ==powerhouse== of the cell.\n" +
		"```\nnot::a card\n```\n"
	cards := extractCards(body, 0)
	if len(cards) != 4 {
		t.Fatalf("len = %d: %+v", len(cards), cards)
	}

	want := []struct {
		kind  CardKind
		line  int
		faces int
	}{
		{KindInline, 0, 1},
		{KindReversible, 2, 2},
		{KindBlock, 4, 1},
		{KindCloze, 9, 2},
	}
	for i, w := range want {
		c := cards[i]
		if c.Kind != w.kind || c.LineNo != w.line || c.Faces != w.faces {
			t.Errorf("card %d = {kind %d line %d faces %d}, want %+v", i, c.Kind, c.LineNo, c.Faces, w)
		}
	}

	if b := cards[2]; b.Front != "What is\nthe answer?" || b.Back != "42\nand more" {
		t.Errorf("block = %q / %q", b.Front, b.Back)
	}
}

func TestCard_Faces(t *testing.T) {
	rev := extractCards("cat:::Katze", 0)[0]
	if p, a := rev.Face(1); p != "Katze" || a != "cat" {
		t.Errorf("reverse face = %q / %q", p, a)
	}

	cloze := extractCards("The ==mitochondria== is the ==powerhouse==.", 0)[0]
	p, a := cloze.Face(1)
	if p != "The mitochondria is the [...]." || a != "powerhouse" {
		t.Errorf("cloze face = %q / %q", p, a)
	}
}

func TestCards_HashSurvivesMove(t *testing.T) {
	a := extractCards("q::a", 0)[0]
	b := extractCards("intro\n\n  Q::A  ", 0)[0]
	if a.Hash != b.Hash || a.LineNo == b.LineNo {
		t.Errorf("a = %+v, b = %+v", a, b)
	}
}

func TestCards_UnterminatedBlock(t *testing.T) {
	if cards := extractCards("Q: dangling question", 0); len(cards) != 0 {
		t.Errorf("cards = %+v", cards)
	}
}
