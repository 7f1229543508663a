package importer

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	frontPrefix    = "Q:"
	backPrefix     = "A:"
	mnemonicPrefix = "M:"
)

// Entry is one card parsed out of a markdown deck file.
type Entry struct {
	Front    string
	Back     string
	Mnemonic string
}

type state int

const (
	seeking state = iota
	readingFront
	readingBack
	readingMnemonic
)

// ParseFile reads a deck file from the given path and extracts all
// entries.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads deck markdown and extracts all entries. An entry starts
// at a "Q:" line and collects multi-line blocks for each prefixed
// field until the next "Q:" or a "---" separator. Entries without a
// front are dropped.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)

	var entries []Entry
	var current Entry
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingMnemonic:
			current.Mnemonic = content
		}
		block = nil
	}

	finishEntry := func() {
		flushBlock()
		if current.Front != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		currentState = seeking
	}

	startBlock := func(line, prefix string, next state) {
		flushBlock()
		currentState = next
		content := strings.TrimPrefix(line, prefix)
		content = strings.TrimPrefix(content, " ")
		block = append(block, content)
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "---":
			finishEntry()
		case strings.HasPrefix(line, frontPrefix):
			// A new front always starts a new entry.
			if currentState != seeking {
				finishEntry()
			}
			startBlock(line, frontPrefix, readingFront)
		case strings.HasPrefix(line, backPrefix):
			startBlock(line, backPrefix, readingBack)
		case strings.HasPrefix(line, mnemonicPrefix):
			startBlock(line, mnemonicPrefix, readingMnemonic)
		default:
			if currentState != seeking {
				block = append(block, line)
			}
		}
	}

	finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
