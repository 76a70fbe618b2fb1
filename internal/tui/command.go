package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// CommandDef describes one prompt command for dispatch and help.
type CommandDef struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
}

var commands = []CommandDef{
	{Name: "chats", Aliases: []string{"c"}, Usage: ":chats", Description: "Chat list"},
	{Name: "refresh", Aliases: []string{"r"}, Usage: ":refresh", Description: "Reload chats from the backend"},
	{Name: "filter", Aliases: []string{"f"}, Usage: ":filter <text>", Description: "Filter chats by title"},
	{Name: "ask", Aliases: []string{"search", "s"}, Usage: ":ask [question]", Description: "Search and answer"},
	{Name: "cite", Usage: ":cite <cid>", Description: "Jump to a citation"},
	{Name: "clear", Usage: ":clear", Description: "Clear the conversation"},
	{Name: "delete", Aliases: []string{"rm"}, Usage: ":delete <chat> [topic]", Description: "Delete an indexed source"},
	{Name: "cancel", Usage: ":cancel", Description: "Cancel the running download"},
	{Name: "auth", Aliases: []string{"login"}, Usage: ":auth", Description: "Telegram login"},
	{Name: "help", Aliases: []string{"h", "?"}, Usage: ":help", Description: "Show this help"},
	{Name: "quit", Aliases: []string{"q"}, Usage: ":quit", Description: "Quit"},
}

// ParseCommand parses a command string (without the leading ':'). Aliases
// resolve to the canonical name; unknown names are kept as typed.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	if def, ok := lookupCommand(cmd.Name); ok {
		cmd.Name = def.Name
	}
	return cmd
}

// CommandNames lists the canonical command names in table order.
func CommandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.Name
	}
	return names
}

func lookupCommand(name string) (CommandDef, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c, true
			}
		}
	}
	return CommandDef{}, false
}

// ParseSourceRef parses "<chat_id> [topic_id]".
func ParseSourceRef(args string) (int64, *int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, nil, errors.New("usage: delete <chat_id> [topic_id]")
	}
	chatID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid chat id %q", fields[0])
	}
	if len(fields) == 1 {
		return chatID, nil, nil
	}
	topicID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid topic id %q", fields[1])
	}
	return chatID, &topicID, nil
}
