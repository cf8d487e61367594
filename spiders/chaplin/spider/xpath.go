package spider

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// text returns the trimmed text nodes selected by expr, one per line.
// Whitespace-only nodes are left out.
func text(top *html.Node, expr *xpath.Expr) string {
	var parts []string
	for _, node := range htmlquery.QuerySelectorAll(top, expr) {
		if part := strings.TrimSpace(htmlquery.InnerText(node)); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// attr returns the first attribute value selected by expr.
func attr(top *html.Node, expr *xpath.Expr) string {
	node := htmlquery.QuerySelector(top, expr)
	if node == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(node))
}
