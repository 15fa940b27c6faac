package fetch

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/mkravets/tectonic/internal/model"
)

// rssDoc covers RSS 2.0; atomDoc covers Atom feeds. Both are tried in order.
type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
	Updated string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// ParseFeed decodes an RSS or Atom feed into normalized items, newest-first
// order preserved from the feed, capped at maxItems
func ParseFeed(data []byte, maxItems int) ([]model.FetchedItem, error) {
	var rss rssDoc
	if err := xml.Unmarshal(data, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return fromRSS(rss.Channel.Items, maxItems), nil
	}

	var atom atomDoc
	if err := xml.Unmarshal(data, &atom); err == nil && len(atom.Entries) > 0 {
		return fromAtom(atom.Entries, maxItems), nil
	}

	return nil, fmt.Errorf("not a recognizable RSS or Atom feed")
}

func fromRSS(items []rssItem, maxItems int) []model.FetchedItem {
	out := make([]model.FetchedItem, 0, len(items))
	for _, it := range items {
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		item := model.FetchedItem{
			Title:   title,
			URL:     strings.TrimSpace(it.Link),
			Summary: strings.TrimSpace(stripTags(it.Description)),
		}
		if t, ok := parseFeedTime(it.PubDate); ok {
			item.PublishedAt = &t
		}
		out = append(out, item)
	}
	return out
}

func fromAtom(entries []atomEntry, maxItems int) []model.FetchedItem {
	out := make([]model.FetchedItem, 0, len(entries))
	for _, e := range entries {
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
		title := strings.TrimSpace(e.Title)
		if title == "" {
			continue
		}
		item := model.FetchedItem{
			Title:   title,
			URL:     atomHref(e.Links),
			Summary: strings.TrimSpace(stripTags(e.Summary)),
			Content: strings.TrimSpace(stripTags(e.Content)),
		}
		if t, ok := parseFeedTime(e.Updated); ok {
			item.PublishedAt = &t
		}
		out = append(out, item)
	}
	return out
}

// atomHref prefers the alternate link, falling back to the first
func atomHref(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02",
}

func parseFeedTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range feedTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
