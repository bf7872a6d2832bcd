package mcpserver

// ReviewContract tells LLM consumers how to drive a review session and how
// flashcards are written in vault notes.
const ReviewContract = `# Ansuz Review Contract

## Session loop

1. Call ` + "`" + `list_decks` + "`" + ` to see how much is queued per deck.
2. Call ` + "`" + `next_item` + "`" + ` (optionally with a ` + "`" + `deck` + "`" + `). Show the ` + "`" + `prompt` + "`" + ` to the
   user and keep the ` + "`" + `answer` + "`" + ` hidden until they respond.
3. Call ` + "`" + `review_item` + "`" + ` with the item ` + "`" + `id` + "`" + ` and one of the ` + "`" + `options` + "`" + ` returned
   with the item. Any other option is rejected.
4. Repeat until ` + "`" + `next_item` + "`" + ` reports that nothing is left today.

Items answered wrongly come back later the same day as a repeat pass. A
repeat pass only records whether the answer was right; it does not move the
long-term schedule.

## Response options

| Algorithm | Options (worst to best) |
|-----------|-------------------------|
| fsrs      | Again, Hard, Good, Easy |
| anki      | Again, Hard, Good, Easy |
| default   | Hard, Good, Easy        |
| sm2       | Blackout, Incorrect, Incorrect but Easy to Recall, Correct After Hesitation, Correct With Difficulty, Perfect Response |

` + "`" + `preview_item` + "`" + ` returns the interval in days each option would schedule.

## Writing reviewable notes

- A note tagged ` + "`" + `#review` + "`" + ` is reviewed as a whole.
- A note tagged ` + "`" + `#flashcards` + "`" + ` contributes one item per card:
  - ` + "`" + `Question::Answer` + "`" + ` is a one-way card.
  - ` + "`" + `Question:::Answer` + "`" + ` is reversible and yields two cards.
  - A ` + "`" + `Q:` + "`" + ` line followed by an ` + "`" + `A:` + "`" + ` line starts a multi-line card; the answer
    runs until the next blank line.
  - Every ` + "`" + `==highlight==` + "`" + ` on a line makes a cloze card hiding that span.
- The last tag that is not ` + "`" + `review` + "`" + ` or ` + "`" + `flashcards` + "`" + ` names the deck.
- Editing a card's text keeps its history only when the line does not also move.
`
