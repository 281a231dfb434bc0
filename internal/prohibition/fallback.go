package prohibition

import (
	"strings"

	"golang.org/x/net/html"
)

// maxScannedElements bounds the fallback sweep; refusal notices live in a
// handful of semantic containers, not in the thousandth list item.
const maxScannedElements = 120

// scanSemanticElements parses the HTML and scores only the text of semantic
// containers. Dense pages can dilute a short refusal line below the
// full-page thresholds; scoped text keeps it sharp.
func scanSemanticElements(rawHTML string) Result {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Result{Level: LevelNone}
	}

	var best Result
	best.Level = LevelNone
	scanned := 0

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if scanned >= maxScannedElements {
			return
		}
		if n.Type == html.ElementNode && isSemanticNode(n) {
			scanned++
			text := spaceRe.ReplaceAllString(nodeText(n), " ")
			if r := scoreText(text); r.Score > best.Score {
				best = r
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

func isSemanticNode(n *html.Node) bool {
	for _, tag := range semanticSelectors {
		if n.Data == tag {
			return true
		}
	}
	attrText := ""
	for _, a := range n.Attr {
		if a.Key == "class" || a.Key == "id" || a.Key == "role" {
			attrText += " " + strings.ToLower(a.Val)
		}
	}
	if attrText == "" {
		return false
	}
	for _, tok := range semanticClassTokens {
		if strings.Contains(attrText, tok) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
