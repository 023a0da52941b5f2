package sources

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var errNoVideoID = errors.New("no youtube video id in url")

// IsYouTubeURL reports whether rawURL points at youtube.com or youtu.be.
func IsYouTubeURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be")
}

// YouTubeVideoID extracts the video id from youtu.be/ID, watch?v=ID and /shorts/ID links.
func YouTubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	switch {
	case strings.Contains(host, "youtu.be"):
		return strings.TrimPrefix(u.Path, "/")
	case strings.Contains(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			id, _, _ := strings.Cut(rest, "/")
			return id
		}
	}
	return ""
}

type timedText struct {
	Texts []string `xml:"text"`
}

// FetchTranscript downloads the English timed-text track for a YouTube link and flattens it
// into one whitespace-normalized string capped at TranscriptLimit runes.
func (c *Client) FetchTranscript(ctx context.Context, rawURL string) (string, error) {
	id := YouTubeVideoID(rawURL)
	if id == "" {
		return "", errNoVideoID
	}

	endpoint := c.cfg.TimedTextURL + "?lang=en&v=" + url.QueryEscape(id)
	body, err := c.get(ctx, endpoint, BotUserAgent)
	if err != nil {
		return "", err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(raw))) < 10 {
		return "", nil
	}
	return parseTimedText(raw)
}

func parseTimedText(raw []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	pieces := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		// Caption text is often entity-encoded twice.
		pieces = append(pieces, strings.TrimSpace(html.UnescapeString(t)))
	}
	transcript := strings.Join(strings.Fields(strings.Join(pieces, " ")), " ")
	r := []rune(transcript)
	if len(r) > TranscriptLimit {
		transcript = string(r[:TranscriptLimit])
	}
	return transcript, nil
}
