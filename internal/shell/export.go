package shell

import (
	"fmt"
	"os"
	"strings"

	"storyloom/pkg/storytypes"
)

// ExportMarkdown writes a story to path as a markdown document: the
// title as a heading, the persona as a block quote, user turns bolded,
// model turns as plain prose.
func ExportMarkdown(path, title, instruction string, turns []storytypes.Turn) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	if instruction != "" {
		for _, line := range strings.Split(instruction, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
	}

	for _, turn := range turns {
		switch turn.Role {
		case storytypes.RoleUser:
			fmt.Fprintf(&b, "**You:** %s\n\n", turn.Text)
		default:
			fmt.Fprintf(&b, "%s\n\n", turn.Text)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// exportFileName derives a filesystem-safe default filename from a
// story title.
func exportFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, title)
	name = strings.Trim(name, "-")
	if name == "" {
		name = "story"
	}
	return name + ".md"
}
