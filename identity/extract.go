package identity

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor finds a channel key in a parsed page.
type Extractor interface {
	Name() string
	Extract(doc *html.Node) (key string, ok bool)
}

type extractorFunc struct {
	name string
	fn   func(*html.Node) (string, bool)
}

func (e extractorFunc) Name() string                           { return e.name }
func (e extractorFunc) Extract(doc *html.Node) (string, bool) { return e.fn(doc) }

// DefaultExtractors returns the built-in chain in priority order: channel id
// meta tag, structured data in scripts, canonical link, owner link.
func DefaultExtractors() []Extractor {
	return []Extractor{
		extractorFunc{"meta", fromMetaChannelID},
		extractorFunc{"script", fromScripts},
		extractorFunc{"canonical", fromCanonical},
		extractorFunc{"owner", fromOwnerLink},
	}
}

var channelIDPattern = regexp.MustCompile(`"channelId"\s*:\s*"(UC[0-9A-Za-z_-]{22})"`)

// ChannelIDKey returns the key for a channel id.
func ChannelIDKey(id string) string { return VideoDomain + "/channel/" + id }

// HandleKey returns the key for a handle; the leading @ is optional.
func HandleKey(handle string) string { return VideoDomain + "/@" + strings.TrimPrefix(handle, "@") }

// ChannelKeyFromURL maps a channel link (absolute or relative) to its key.
func ChannelKeyFromURL(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if u.Host != "" && !videoHosts[strings.ToLower(u.Hostname())] {
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segs) >= 1 && strings.HasPrefix(segs[0], "@") && len(segs[0]) > 1:
		return HandleKey(segs[0]), true
	case len(segs) >= 2 && segs[0] == "channel" && segs[1] != "":
		return ChannelIDKey(segs[1]), true
	}
	return "", false
}

func fromMetaChannelID(doc *html.Node) (string, bool) {
	var key string
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Meta && attr(n, "itemprop") == "channelId" {
			if v := strings.TrimSpace(attr(n, "content")); v != "" {
				key = ChannelIDKey(v)
				return false
			}
		}
		return true
	})
	return key, key != ""
}

func fromScripts(doc *html.Node) (string, bool) {
	var key string
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Script {
			return true
		}
		body := text(n)
		if strings.EqualFold(attr(n, "type"), "application/ld+json") {
			if k, ok := fromStructuredData(body); ok {
				key = k
				return false
			}
		}
		if m := channelIDPattern.FindStringSubmatch(body); m != nil {
			key = ChannelIDKey(m[1])
			return false
		}
		return true
	})
	return key, key != ""
}

// fromStructuredData looks for a channel in a JSON-LD VideoObject, either as
// an author link or an explicit channelId.
func fromStructuredData(body string) (string, bool) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return "", false
	}
	return searchJSON(v, 0)
}

func searchJSON(v any, depth int) (string, bool) {
	if depth > 8 {
		return "", false
	}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if k, ok := searchJSON(e, depth+1); ok {
				return k, true
			}
		}
	case map[string]any:
		if id, ok := t["channelId"].(string); ok && id != "" {
			return ChannelIDKey(id), true
		}
		if author, ok := t["author"]; ok {
			switch a := author.(type) {
			case map[string]any:
				if u, ok := a["url"].(string); ok {
					if k, ok := ChannelKeyFromURL(u); ok {
						return k, true
					}
				}
			case []any:
				for _, e := range a {
					if m, ok := e.(map[string]any); ok {
						if u, ok := m["url"].(string); ok {
							if k, ok := ChannelKeyFromURL(u); ok {
								return k, true
							}
						}
					}
				}
			}
		}
		for _, e := range t {
			if k, ok := searchJSON(e, depth+1); ok {
				return k, true
			}
		}
	}
	return "", false
}

func fromCanonical(doc *html.Node) (string, bool) {
	var key string
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Link && strings.EqualFold(attr(n, "rel"), "canonical") {
			if k, ok := ChannelKeyFromURL(attr(n, "href")); ok {
				key = k
				return false
			}
		}
		return true
	})
	return key, key != ""
}

func fromOwnerLink(doc *html.Node) (string, bool) {
	var key string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if n.Data != "ytd-video-owner-renderer" && attr(n, "id") != "owner" {
			return true
		}
		walk(n, func(c *html.Node) bool {
			if c.DataAtom == atom.A {
				if k, ok := ChannelKeyFromURL(attr(c, "href")); ok {
					key = k
					return false
				}
			}
			return true
		})
		return key == ""
	})
	return key, key != ""
}

// walk visits n and its descendants depth-first until fn returns false.
// It reports whether the walk ran to completion.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
