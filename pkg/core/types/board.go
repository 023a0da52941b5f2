package types

import "time"

// ContentDoc is a named text document used as reference material.
type ContentDoc struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// BoardDoc is a ContentDoc stored inside a board.
type BoardDoc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Board is a named bundle of reference links and documents.
type Board struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Links       []string   `json:"links"`
	Docs        []BoardDoc `json:"docs"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BoardInput is the client-supplied shape used to create a board.
type BoardInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Links       []string     `json:"links"`
	Docs        []ContentDoc `json:"docs"`
}

// BoardPatch carries a partial board update. Nil fields are left untouched.
type BoardPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Links       *[]string   `json:"links,omitempty"`
	Docs        *[]BoardDoc `json:"docs,omitempty"`
}

// SavedChat is a persisted conversation.
type SavedChat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	SavedAt  time.Time `json:"saved_at"`
	Messages []Message `json:"messages"`
}

// ReferenceContext is the per-turn reference material handed to the model.
type ReferenceContext struct {
	Links []string     `json:"links"`
	Docs  []ContentDoc `json:"docs"`
}

// Empty reports whether the context carries no links and no docs.
func (c ReferenceContext) Empty() bool {
	return len(c.Links) == 0 && len(c.Docs) == 0
}

// ContextFromBoards unions the links (deduplicated, first occurrence wins) and docs of the
// given boards. When no boards are given the loose links and docs are used instead.
func ContextFromBoards(selected []Board, looseLinks []string, looseDocs []ContentDoc) ReferenceContext {
	if len(selected) == 0 {
		return ReferenceContext{
			Links: append([]string(nil), looseLinks...),
			Docs:  append([]ContentDoc(nil), looseDocs...),
		}
	}

	var out ReferenceContext
	seen := make(map[string]struct{})
	for _, b := range selected {
		for _, link := range b.Links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			out.Links = append(out.Links, link)
		}
		for _, d := range b.Docs {
			out.Docs = append(out.Docs, ContentDoc{Name: d.Name, Text: d.Text})
		}
	}
	return out
}

// LinkSummary is what could be learned about one reference link.
type LinkSummary struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}
