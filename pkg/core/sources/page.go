package sources

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type pageMeta struct {
	title         string
	ogTitle       string
	twitterTitle  string
	ogDescription string
	description   string
}

// parsePage scans an HTML document for the title and the meta tags Poppy cares about. It
// stops at </head> or the first <body> tag.
func parsePage(r io.Reader) pageMeta {
	var m pageMeta
	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return m
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = m.title == ""
			case atom.Meta:
				m.applyMeta(tok.Attr)
			case atom.Body:
				return m
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = false
			case atom.Head:
				return m
			}
		case html.TextToken:
			if inTitle {
				m.title += string(z.Text())
			}
		}
	}
}

func (m *pageMeta) applyMeta(attrs []html.Attribute) {
	var key, content string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	if content == "" {
		return
	}
	set := func(dst *string) {
		if *dst == "" {
			*dst = content
		}
	}
	switch key {
	case "og:title":
		set(&m.ogTitle)
	case "twitter:title":
		set(&m.twitterTitle)
	case "og:description":
		set(&m.ogDescription)
	case "description":
		set(&m.description)
	}
}
