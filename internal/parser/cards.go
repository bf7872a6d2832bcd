package parser

import (
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
)

// CardKind is the syntax a flashcard was written in.
type CardKind int

const (
	// KindInline is a single "front::back" line.
	KindInline CardKind = iota
	// KindReversible is a "front:::back" line reviewed in both directions.
	KindReversible
	// KindBlock is a "Q:" / "A:" block.
	KindBlock
	// KindCloze is a paragraph with ==highlighted== deletions, one face each.
	KindCloze
)

var clozeRe = regexp.MustCompile(`==(.+?)==`)

// Card is one flashcard found in a document.
type Card struct {
	Kind   CardKind
	LineNo int // 0-based line of the first card line in the whole document
	Text   string
	Front  string
	Back   string
	Hash   string
	Faces  int
}

// Face returns the prompt and answer shown for face i of the card.
func (c Card) Face(i int) (prompt, answer string) {
	switch c.Kind {
	case KindReversible:
		if i == 1 {
			return c.Back, c.Front
		}
		return c.Front, c.Back
	case KindCloze:
		n := -1
		var hidden string
		prompt = clozeRe.ReplaceAllStringFunc(c.Text, func(m string) string {
			n++
			inner := clozeRe.FindStringSubmatch(m)[1]
			if n == i {
				hidden = inner
				return "[...]"
			}
			return inner
		})
		return prompt, hidden
	default:
		return c.Front, c.Back
	}
}

func newCard(kind CardKind, line int, text, front, back string, faces int) Card {
	return Card{
		Kind:   kind,
		LineNo: line,
		Text:   text,
		Front:  strings.TrimSpace(front),
		Back:   strings.TrimSpace(back),
		Hash:   checksum.CardHash(text),
		Faces:  faces,
	}
}

// extractCards scans body for flashcards. offset is added to every line
// number so they refer to the whole document.
func extractCards(body string, offset int) []Card {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var out []Card
	var fenced bool
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if isFence(line) {
			fenced = !fenced
			continue
		}
		if fenced || strings.TrimSpace(line) == "" {
			continue
		}

		if q, ok := strings.CutPrefix(strings.TrimSpace(line), "Q:"); ok {
			end, card, ok := block(lines, i, q)
			if ok {
				card.LineNo += offset
				out = append(out, card)
				i = end
				continue
			}
		}
		if front, back, ok := strings.Cut(line, ":::"); ok && strings.TrimSpace(front) != "" && strings.TrimSpace(back) != "" {
			out = append(out, newCard(KindReversible, i+offset, line, front, back, 2))
			continue
		}
		if front, back, ok := strings.Cut(line, "::"); ok && strings.TrimSpace(front) != "" && strings.TrimSpace(back) != "" {
			out = append(out, newCard(KindInline, i+offset, line, front, back, 1))
			continue
		}
		if spans := clozeRe.FindAllString(line, -1); len(spans) > 0 {
			out = append(out, newCard(KindCloze, i+offset, line, "", "", len(spans)))
		}
	}
	return out
}

// block reads a Q:/A: card starting at line start. The question runs until a
// line beginning with "A:", the answer until the next blank line.
func block(lines []string, start int, q string) (int, Card, bool) {
	question := []string{q}
	i := start + 1
	for ; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if _, ok := strings.CutPrefix(t, "A:"); ok || t == "" {
			break
		}
		question = append(question, lines[i])
	}
	if i >= len(lines) {
		return start, Card{}, false
	}
	a, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), "A:")
	if !ok {
		return start, Card{}, false
	}
	answer := []string{a}
	for i++; i < len(lines) && strings.TrimSpace(lines[i]) != ""; i++ {
		answer = append(answer, lines[i])
	}
	text := strings.Join(lines[start:i], "\n")
	front := strings.Join(question, "\n")
	back := strings.Join(answer, "\n")
	return i - 1, newCard(KindBlock, start, text, front, back, 1), true
}
