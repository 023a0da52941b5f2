// Package export turns conversations into shareable documents.
package export

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

const (
	// DefaultHooksTitle is used when there is no conversation to build from.
	DefaultHooksTitle = "Poppy Content Hooks"

	// DefaultFilename is the stem used when a title has no filename-safe characters.
	DefaultFilename = "poppy-hooks"

	// DefaultChatTitle names saved chats with no user message.
	DefaultChatTitle = "Chat notes"

	chatTitleLimit = 40
	baseTitleLimit = 60
	goalLimit      = 280

	signOff         = "Let me know if you want matching video titles, scripts, or social captions next!"
	defaultGoal     = "We outlined how you want Poppy to remix your content voice into fresh hooks."
	defaultHook     = "Here's your first hook idea. Keep feeding me your content so I can personalize more!"
	defaultBaseName = "Your Brand"
)

// Document is an exportable title plus plain-text (markdown-ish) body.
type Document struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var (
	hookMarker   = regexp.MustCompile(`(?i)(hook|title)\s*1`)
	lineBreaks   = regexp.MustCompile(`\n+`)
	bulletPrefix = regexp.MustCompile(`^\s*[-*+]\s*`)
	numberPrefix = regexp.MustCompile(`^\s*\d+[).:\-]?\s*`)
	quoted       = regexp.MustCompile(`"(.*)"`)
	smartQuotes  = strings.NewReplacer(`"`, "", "“", "", "”", "")
	unsafeChars  = regexp.MustCompile(`[^a-z0-9]+`)
)

// BuildHooksDocument assembles the "content hooks" action plan from a conversation: the goal
// is the last user message and the hooks come from the latest assistant reply that lists them.
func BuildHooksDocument(messages []types.Message) Document {
	if len(messages) == 0 {
		return Document{
			Title: DefaultHooksTitle,
			Content: strings.Join([]string{
				"# " + DefaultHooksTitle,
				"",
				"## Goal",
				"Start a conversation with Poppy about your content goals so she can craft hook ideas tailored to your brand.",
				"",
				"## Hooks",
				`1. "Hook 1"`,
				`2. "Hook 2"`,
				`3. "Hook 3"`,
				"",
				"---",
				"",
				signOff,
			}, "\n"),
		}
	}

	var user, assistant []string
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			user = append(user, m.Content)
		case types.RoleAssistant:
			assistant = append(assistant, m.Content)
		}
	}

	var firstUser, lastUser string
	if len(user) > 0 {
		firstUser = strings.TrimSpace(user[0])
		lastUser = strings.TrimSpace(user[len(user)-1])
	}

	hookText := findHookText(assistant)
	hooks := parseHooks(hookText)
	if len(hooks) == 0 {
		if trimmed := strings.TrimSpace(hookText); trimmed != "" {
			hooks = []string{trimmed}
		} else {
			hooks = []string{defaultHook}
		}
	}

	goal := lastUser
	if goal == "" {
		goal = defaultGoal
	}

	baseTitle := defaultBaseName
	if focus := strings.TrimSpace(smartQuotes.Replace(collapse(firstUser))); focus != "" {
		baseTitle = ellipsize(focus, baseTitleLimit)
	}
	title := "Content Hooks Inspired by " + baseTitle

	lines := []string{
		"# " + title,
		"",
		"## Goal",
		ellipsize(strings.TrimSpace(collapse(goal)), goalLimit),
		"",
		"## Hooks",
	}
	for i, h := range hooks {
		lines = append(lines, strconv.Itoa(i+1)+". "+h)
	}
	lines = append(lines, "", "---", "", signOff)

	return Document{Title: title, Content: strings.Join(lines, "\n")}
}

func findHookText(assistant []string) string {
	for i := len(assistant) - 1; i >= 0; i-- {
		if hookMarker.MatchString(assistant[i]) {
			return assistant[i]
		}
	}
	if len(assistant) == 0 {
		return ""
	}
	return assistant[len(assistant)-1]
}

func parseHooks(body string) []string {
	if body == "" {
		return nil
	}
	var hooks []string
	for _, line := range lineBreaks.Split(body, -1) {
		line = bulletPrefix.ReplaceAllString(line, "")
		line = numberPrefix.ReplaceAllString(line, "")
		line = quoted.ReplaceAllString(line, "$1")
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 3 {
			hooks = append(hooks, line)
		}
	}
	return hooks
}

// SafeFilename lowercases title and reduces it to dash-separated [a-z0-9] runs.
func SafeFilename(title string) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(title), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return DefaultFilename
	}
	return name
}

// ChatTitle previews a conversation by its first user message, cut to 40 runes.
func ChatTitle(messages []types.Message) string {
	for _, m := range messages {
		if m.Role != types.RoleUser {
			continue
		}
		line := strings.TrimSpace(m.Content)
		if line == "" {
			break
		}
		return ellipsize(line, chatTitleLimit)
	}
	return DefaultChatTitle
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ellipsize(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
