package server

import (
	"math/rand"
	"strings"
)

var quotes = []string{
	"The best way to predict the future is to invent it. — Alan Kay",
	"Code is like humor. When you have to explain it, it's bad. — Cory House",
	"Programs must be written for people to read. — Harold Abelson",
	"Simplicity is the ultimate sophistication. — Leonardo da Vinci",
	"Make it work, make it right, make it fast. — Kent Beck",
	"The most dangerous phrase is: we've always done it this way. — Grace Hopper",
	"Walking on water and developing software from a specification are easy if both are frozen. — Edward Berard",
	"Any fool can write code that a computer can understand. Good programmers write code that humans can understand. — Martin Fowler",
}

func randomQuote() string {
	return quotes[rand.Intn(len(quotes))]
}

const bubbleWidth = 40

// wordWrap splits text into lines of at most maxWidth characters, breaking
// only at spaces.
func wordWrap(text string, maxWidth int) []string {
	words := strings.Fields(text)
	var lines []string
	var current string

	for _, word := range words {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// cowsay renders text in a speech bubble above the classic cow.
func cowsay(text string) string {
	lines := wordWrap(text, bubbleWidth)
	boxWidth := 0
	for _, line := range lines {
		if len(line) > boxWidth {
			boxWidth = len(line)
		}
	}

	var bubble []string
	top := " " + strings.Repeat("_", boxWidth+2)
	bottom := " " + strings.Repeat("-", boxWidth+2)

	if len(lines) == 1 {
		bubble = []string{
			top,
			"< " + pad(lines[0], boxWidth) + " >",
			bottom,
		}
	} else {
		bubble = append(bubble, top)
		for i, line := range lines {
			padded := pad(line, boxWidth)
			switch i {
			case 0:
				bubble = append(bubble, "/ "+padded+" \\")
			case len(lines) - 1:
				bubble = append(bubble, "\\ "+padded+" /")
			default:
				bubble = append(bubble, "| "+padded+" |")
			}
		}
		bubble = append(bubble, bottom)
	}

	cow := []string{
		`        \   ^__^`,
		`         \  (oo)\_______`,
		`            (__)\       )\/\`,
		`                ||----w |`,
		`                ||     ||`,
	}

	return strings.Join(append(bubble, cow...), "\n")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
