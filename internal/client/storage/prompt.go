package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/atinyakov/cortexvault/internal/models"
)

// PromptForEntry reads a new entry interactively. The scanner is shared
// with the caller so buffered input is not lost between prompts.
func PromptForEntry(scanner *bufio.Scanner, out io.Writer) models.Entry {
	fmt.Fprint(out, "Enter title: ")
	scanner.Scan()
	title := strings.TrimSpace(scanner.Text())

	fmt.Fprint(out, "Enter tags (comma separated): ")
	scanner.Scan()
	tags := ParseTags(scanner.Text())

	fmt.Fprint(out, "Enter content: ")
	scanner.Scan()
	content := scanner.Text()

	return models.Entry{
		ID:      uuid.NewString(),
		Title:   title,
		Content: content,
		Tags:    tags,
	}
}

// PromptEditEntry reads replacement content, either typed or loaded from
// a file.
func PromptEditEntry(scanner *bufio.Scanner, out io.Writer) (title, content string, tags []string) {
	fmt.Fprint(out, "Enter new title: ")
	scanner.Scan()
	title = strings.TrimSpace(scanner.Text())

	fmt.Fprint(out, "Enter file path to load (leave empty for manual input): ")
	scanner.Scan()
	path := strings.TrimSpace(scanner.Text())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "Failed to read file %q: %v\n", path, err)
			return "", "", nil
		}
		content = string(data)
	} else {
		fmt.Fprint(out, "Enter new content: ")
		scanner.Scan()
		content = scanner.Text()
	}

	fmt.Fprint(out, "Enter new tags (leave empty to keep): ")
	scanner.Scan()
	tags = ParseTags(scanner.Text())

	return title, content, tags
}

// ParseTags splits a comma separated list, dropping blanks. It returns nil
// for an empty list.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
