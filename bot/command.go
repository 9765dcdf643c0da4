package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/onnwee/meme-curator/memes"
)

// CommandName is one of the recognized command keywords.
type CommandName string

const (
	CmdPing    CommandName = "!ping"
	CmdApprove CommandName = "!aprobado"
	CmdDelete  CommandName = "!borrar"
	CmdList    CommandName = "!lista"
)

// Command is a parsed invocation. Args keep the original casing.
type Command struct {
	Name CommandName
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// ParseCommand tokenizes content and matches the first token, case-insensitively,
// against the command set. Text that merely starts with a keyword (say
// "!aprobadoX") is not a command.
func ParseCommand(content string) (Command, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return Command{}, false
	}
	name := CommandName(strings.ToLower(fields[0]))
	switch name {
	case CmdPing, CmdApprove, CmdDelete, CmdList:
		return Command{Name: name, Args: fields[1:]}, true
	}
	return Command{}, false
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ResolveSourceURL picks the image to approve, in order: the first image
// attachment of the replied-to message, the first URL in the replied-to text,
// then the command's own first argument when it looks like a URL.
func ResolveSourceURL(msg *Message, cmd Command) string {
	if ref := msg.ReplyTo; ref != nil {
		for _, a := range ref.Attachments {
			if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") && a.URL != "" {
				return a.URL
			}
		}
		if u := urlPattern.FindString(ref.Content); u != "" {
			return u
		}
	}
	if arg := cmd.Arg(0); strings.HasPrefix(arg, "http") {
		return arg
	}
	return ""
}

// ParseIndex resolves the delete target for a list of n entries: the integer
// argument when given, the last entry otherwise.
func ParseIndex(cmd Command, n int) (int, error) {
	idx := n - 1
	if arg := cmd.Arg(0); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return 0, fmt.Errorf("index %q: %w", arg, memes.ErrInvalidArgument)
		}
		idx = v
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("index %d of %d: %w", idx, n, memes.ErrInvalidArgument)
	}
	return idx, nil
}
