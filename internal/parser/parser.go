package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	optionPrefix   = "O:"
	titlePrefix    = "# "
)

// Entry is one block of a markdown deck. Entries with Options are
// multiple-choice exam questions; the rest are flashcards.
type Entry struct {
	Question string
	Answer   string
	Context  string
	Options  []string
}

// Deck is the parsed content of one markdown file.
type Deck struct {
	Title   string
	Entries []Entry
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
	readingOptions
)

// ParseFile reads a file from the given path and extracts its deck.
func ParseFile(path string) (*Deck, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all entries.
func Parse(r io.Reader) (*Deck, error) {
	scanner := bufio.NewScanner(r)
	deck := &Deck{}
	var current Entry
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingQuestion:
			current.Question = content
		case readingAnswer:
			current.Answer = content
		case readingContext:
			current.Context = content
		}
		currentBlock = nil
	}

	finishEntry := func() {
		flushBlock()
		if current.Question != "" {
			current.Answer = strings.TrimRight(current.Answer, "\n")
			current.Context = strings.TrimRight(current.Context, "\n")
			deck.Entries = append(deck.Entries, current)
		}
		current = Entry{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			finishEntry()
			continue
		}

		if currentState == seeking && deck.Title == "" && strings.HasPrefix(line, titlePrefix) {
			deck.Title = strings.TrimSpace(line[len(titlePrefix):])
			continue
		}

		switch {
		case strings.HasPrefix(line, questionPrefix):
			if currentState != seeking { // A new question always starts a new entry
				finishEntry()
			}
			currentState = readingQuestion
			currentBlock = append(currentBlock, stripPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			flushBlock()
			currentState = readingAnswer
			currentBlock = append(currentBlock, stripPrefix(line, answerPrefix))
		case strings.HasPrefix(line, contextPrefix):
			flushBlock()
			currentState = readingContext
			currentBlock = append(currentBlock, stripPrefix(line, contextPrefix))
		case strings.HasPrefix(line, optionPrefix):
			if currentState == seeking {
				continue
			}
			flushBlock()
			currentState = readingOptions
			current.Options = append(current.Options, strings.TrimSpace(stripPrefix(line, optionPrefix)))
		default:
			// Options are single-line; anything between them is ignored.
			if currentState != seeking && currentState != readingOptions && (line != "" || len(currentBlock) > 0) {
				currentBlock = append(currentBlock, line)
			}
		}
	}

	finishEntry() // Finish the very last entry in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return deck, nil
}

func stripPrefix(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}
