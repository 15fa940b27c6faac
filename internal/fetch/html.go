package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/mkravets/tectonic/internal/model"
)

// ParseArticle extracts the title and paragraph text of one HTML page
func ParseArticle(data []byte, pageURL string) (model.FetchedItem, error) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return model.FetchedItem{}, err
	}

	item := model.FetchedItem{URL: pageURL}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if item.Title == "" {
					item.Title = strings.TrimSpace(textContent(n))
				}
			case "h1":
				// Prefer the page's h1 over the <title> tag
				if t := strings.TrimSpace(textContent(n)); t != "" {
					item.Title = t
				}
			case "p":
				if t := strings.TrimSpace(textContent(n)); len(t) > 40 {
					paragraphs = append(paragraphs, t)
				}
			case "script", "style", "nav", "footer", "aside":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	item.Content = strings.Join(paragraphs, "\n\n")
	return item, nil
}

// IndexLinks extracts outbound same-host article links from an index page, in
// document order, deduplicated, capped at maxLinks
func IndexLinks(data []byte, baseURL string, maxLinks int) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved := resolveLink(base, attr.Val)
				if resolved == "" || seen[resolved] {
					continue
				}
				seen[resolved] = true
				links = append(links, resolved)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if maxLinks > 0 && len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links, nil
}

// resolveLink resolves href against base and keeps only same-host http(s)
// links that are not the index itself
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if resolved.Host != base.Host {
		return ""
	}
	resolved.Fragment = ""
	if resolved.String() == base.String() || resolved.Path == "" || resolved.Path == "/" {
		return ""
	}
	return resolved.String()
}

// textContent concatenates the text nodes under n
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripTags flattens embedded HTML in feed descriptions to plain text
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	return textContent(doc)
}
