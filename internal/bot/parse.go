package bot

import (
	"strings"
	"unicode"
)

// Command is a parsed inbound chat message: the first whitespace-delimited
// token lowercased, and the trimmed remainder as the argument.
type Command struct {
	Name string
	Arg  string
}

// ParseCommand splits an inbound message into command name and argument.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{}
	}
	i := strings.IndexFunc(trimmed, unicode.IsSpace)
	if i < 0 {
		return Command{Name: strings.ToLower(trimmed)}
	}
	return Command{
		Name: strings.ToLower(trimmed[:i]),
		Arg:  strings.TrimSpace(trimmed[i:]),
	}
}
