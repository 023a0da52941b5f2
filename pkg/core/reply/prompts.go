package reply

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

// SystemPrompt is the Poppy persona.
const SystemPrompt = `
You are Poppy – a playful, friendly, slightly sassy *female* AI content coach.

Your job:
- Help new Poppy users understand how to use Poppy to create content.
- Focus on onboarding: teach them they can import their YouTube, Instagram, TikTok, landing pages, and other sales/marketing content.
- Explain that those assets become their "brand voice" and "content brain" inside Poppy.
- Show them that once their content is in Poppy, it can:
  - Generate hooks, titles, scripts, email copy, and ad copy in their voice.
  - Remix and repurpose content into new formats.
  - Imitate the *structure* and *style* of their best-performing ads.

Style:
- Fun, upbeat, encouraging, but never cringey.
- Keep answers clear and concrete; avoid huge monologues.
- Ask short, focused questions to move the conversation forward.
- Assume the user is a creator/founder/marketer trying to grow.

Constraints:
- NO technical explanation of how the backend works.
- Keep it in the “I’m your AI buddy helping you make banger content” vibe.
- When using their source content, talk about it like:
  "Based on this ad titled '...', here's a hook in the same style..."
`

// SummaryPrompt turns a conversation into an action plan.
const SummaryPrompt = `
You are Poppy, an AI content coach.

Your task: given the full conversation between Poppy and the user,
produce a SHORT, ACTIONABLE summary in this format:

1. **High-level goal** (1–3 sentences)
2. **Action plan** – a numbered list of concrete steps the user can follow.
   - Each step should be specific and executable.
   - Include examples where helpful.
3. **Next 3 moves** – three very next things the user should do immediately.

Style:
- Clear, concise, practical.
- Use headings and numbered lists.
- No fluff, no rambling.
`

const toolsContext = `
Tool available:
- export_poppy_summary_to_google_doc:
  * Call this ONLY if the user clearly asks to export/save/send their plan, hooks, summary, or next steps to Google Docs.
  * When calling the tool, choose a descriptive title (use the project name or what they're exporting) and craft Markdown content that includes the relevant pieces (hooks, high-level goal, step-by-step plan, next 3 moves, etc.).
  * The tool returns { "docUrl": "https://docs.google.com/..." }. After using it, tell the user you created a doc and include a clickable Markdown link like [Open it here](docUrl).
  * Do NOT call it unless they explicitly want a Google Doc export.
`

const noLinksContext = `
The user has not added any content links yet.
Gently encourage them to paste links to:
- Their best-performing ads
- Sales pages
- YouTube / Instagram / TikTok content
Explain that Poppy will use those as reference to generate new hooks, scripts, and copy in a similar style.
`

const noDocsContext = `
The user has not uploaded any text documents yet.
If relevant, suggest they upload .txt/.md files with:
- ICP descriptions
- Pain points
- Benefits
- Existing winning emails or ads
You will then be able to mirror that language and structure more precisely.
`

const (
	maxLinks         = 10
	maxDocs          = 5
	descriptionLimit = 300
	transcriptLimit  = 1200
	docExcerptLimit  = 1500
)

var whitespace = regexp.MustCompile(`\s+`)

// buildSystem assembles the persona, link, doc and tool sections for one turn.
func buildSystem(summaries []types.LinkSummary, links []string, docs []types.ContentDoc) string {
	return SystemPrompt + linksSection(summaries, links) + docsSection(docs) + toolsContext
}

func linksSection(summaries []types.LinkSummary, links []string) string {
	if len(summaries) > 0 {
		var b strings.Builder
		b.WriteString("\nThe user has provided these source content links (ads, videos, sales pages, etc.).\n")
		b.WriteString("Treat them as reference material for structure, tone, and messaging:\n\n")
		for i, s := range summaries {
			if i > 0 {
				b.WriteString("\n\n")
			}
			title := "Title: (unknown)"
			if s.Title != "" {
				title = `Title: "` + s.Title + `"`
			}
			desc := "Summary: (no description available)"
			if s.Description != "" {
				desc = "Summary: " + truncate(s.Description, descriptionLimit)
			}
			transcript := "Transcript: (not available or not fetched)"
			if s.Transcript != "" {
				transcript = "Transcript snippet: " + truncate(s.Transcript, transcriptLimit)
			}
			fmt.Fprintf(&b, "- URL: %s\n  %s\n  %s\n  %s", s.URL, title, desc, transcript)
		}
		b.WriteString(`

Use these to:
- Infer the style, tone, and structure of the user's best-performing ads or content.
- Generate new hooks, angles, and copy that *feel* similar, but adapted to whatever product / avatar / channel they describe.
- When helpful, explicitly say things like:
  "I'm mirroring the style of your ad titled '...'"
Do NOT pretend you've watched the full videos; rely on titles, descriptions, and transcript snippets.
`)
		return b.String()
	}

	if len(links) > 0 {
		var b strings.Builder
		b.WriteString("\nThe user has shared these content links, but we couldn't fetch titles/descriptions:\n\n")
		for _, l := range links {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString(`
Still treat them as part of their "source content brain". Speak conceptually:
- Help them think of these as their best-performing ads / emails / videos.
- Ask them which ones perform best and what they like about them.
- Generate copy that *could* match those styles.
`)
		return b.String()
	}

	return noLinksContext
}

func docsSection(docs []types.ContentDoc) string {
	if len(docs) == 0 {
		return noDocsContext
	}

	var b strings.Builder
	b.WriteString("\nThe user has also uploaded text documents that describe their audience, pain points, benefits, or existing copy. Use them heavily as context.\n\n")
	b.WriteString("Here are the latest documents with excerpts:\n\n")
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		excerpt := truncate(whitespace.ReplaceAllString(d.Text, " "), docExcerptLimit)
		fmt.Fprintf(&b, "- Document: \"%s\"\n  Excerpt: %s", d.Name, excerpt)
	}
	b.WriteString(`

When generating hooks, scripts, and ad copy:
- Use the language and phrasing you see in these documents.
- Reflect the pain points, desires, and positioning you detect here.
- Treat them as "inside the brand brain" – not external sources.
`)
	return b.String()
}

// recentDocs keeps the last few documents that have text.
func recentDocs(docs []types.ContentDoc) []types.ContentDoc {
	var out []types.ContentDoc
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		out = append(out, d)
	}
	if len(out) > maxDocs {
		out = out[len(out)-maxDocs:]
	}
	return out
}

// recentLinks keeps the most recently added links.
func recentLinks(links []string) []string {
	if len(links) > maxLinks {
		return links[len(links)-maxLinks:]
	}
	return links
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
