package resolver

import (
	"fmt"
	"strings"

	"bwhelper/internal/quiz"
)

// BuildPrompt 按题型构建提示词
func BuildPrompt(q *quiz.Question) string {
	question := CleanQuestion(q.Text)

	var b strings.Builder
	switch q.Kind {
	case quiz.KindMultipleChoice:
		fmt.Fprintf(&b, "Question: %s\nOptions:\n", question)
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
		b.WriteString("\nAnalyze the question and options carefully. Return only the number (1, 2, 3, etc.) of the correct option.")
	case quiz.KindDragWords:
		sentence := q.Sentence
		if sentence == "" {
			sentence = question
		}
		fmt.Fprintf(&b, "Sentence with blanks (each blank is ___): %s\n", sentence)
		fmt.Fprintf(&b, "Draggable words: %s\n", strings.Join(q.Words, ", "))
		b.WriteString("\nFor each blank, in order, choose the word that belongs there. ")
		b.WriteString("Answer as a numbered list with one word per line, like:\n1. word\n2. word")
	default:
		fmt.Fprintf(&b, "Question: %s\nGive a brief, accurate answer. Reply with the answer only.\nAnswer:", question)
	}
	return b.String()
}
