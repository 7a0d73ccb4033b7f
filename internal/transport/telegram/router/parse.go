package router

import "strings"

// parsedCommand is a "/name@bot arg1 arg2" line.
type parsedCommand struct {
	Name string
	Bot  string   // @mention suffix, lowercased ("" when absent)
	Args []string // whitespace-separated words after the name
}

// parseCommand reports ok=false for text that is not a command.
// Arguments split on any whitespace; callers re-join them with single
// spaces, so "/add 001  hi   there" carries the message "hi there".
func parseCommand(text string) (parsedCommand, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return parsedCommand{}, false
	}
	fields := strings.Fields(text)
	head := strings.TrimPrefix(fields[0], "/")
	var bot string
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head, bot = head[:i], strings.ToLower(head[i+1:])
	}
	if head == "" || !validCommandName(head) {
		return parsedCommand{}, false
	}
	return parsedCommand{Name: strings.ToLower(head), Bot: bot, Args: fields[1:]}, true
}

// Telegram command names are [A-Za-z0-9_]{1,32}.
func validCommandName(s string) bool {
	if len(s) > 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// joinArgs re-joins words with single spaces.
func joinArgs(args []string) string { return strings.Join(args, " ") }
