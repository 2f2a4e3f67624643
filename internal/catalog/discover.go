package catalog

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink は会場ページのheadから検出したフィードリンク。
type feedLink struct {
	URL  string
	Atom bool
}

var feedMediaTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
}

// mediaTypeOf はContent-Typeからパラメータを除いたメディアタイプを返す。
func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// isFeedDocument はレスポンスがRSS/Atomフィードかどうかを判定する。
// 汎用XMLの場合は先頭4KBのルート要素で判定する。
func isFeedDocument(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	if feedMediaTypes[mediaType] {
		return true
	}
	if mediaType != "text/xml" && mediaType != "application/xml" {
		return false
	}

	prefix := body
	if len(prefix) > 4096 {
		prefix = prefix[:4096]
	}
	head := strings.ToLower(string(prefix))
	return strings.Contains(head, "<rss") ||
		strings.Contains(head, "<rdf:rdf") ||
		(strings.Contains(head, "<feed") && strings.Contains(head, "http://www.w3.org/2005/atom"))
}

// isHTMLDocument はレスポンスがHTMLかどうかを判定する。
func isHTMLDocument(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

// feedLinksFromHTML はheadタグ内の<link rel="alternate">からフィードリンクを抽出する。
// 相対URLはpageURLを基準に解決する。
func feedLinksFromHTML(body []byte, pageURL string) []feedLink {
	var links []feedLink
	if _, err := url.Parse(pageURL); err != nil {
		return links
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
			if rel != "alternate" || href == "" || !feedMediaTypes[linkType] {
				continue
			}
			links = append(links, feedLink{
				URL:  resolveURL(pageURL, href),
				Atom: linkType == "application/atom+xml",
			})

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return links
			}
		}
	}
}

// pickFeedLink は候補から取り込むフィードを選ぶ。
// 同一ホストを最優先し、次にAtomを優先する。同点なら先頭を採用する。
func pickFeedLink(links []feedLink, pageURL string) string {
	if len(links) == 0 {
		return ""
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].URL
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
