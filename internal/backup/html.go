package backup

import (
	"bufio"
	"fmt"
	stdhtml "html"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// WriteHTML writes bs as a Netscape bookmark file. Containers are written as
// folders carrying their reserved titles so a parse restores them.
func WriteHTML(w io.Writer, bs []bookmark.Bookmark) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	fmt.Fprintf(bw, "<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	fmt.Fprintf(bw, "<TITLE>Bookmarks</TITLE>\n")
	fmt.Fprintf(bw, "<H1>Bookmarks</H1>\n")
	fmt.Fprintf(bw, "<DL><p>\n")
	writeEntries(bw, bs, 1)
	fmt.Fprintf(bw, "</DL><p>\n")
	return errors.Wrap(bw.Flush(), "failed to write html backup")
}

func writeEntries(w *bufio.Writer, bs []bookmark.Bookmark, depth int) {
	indent := strings.Repeat("    ", depth)
	for _, b := range bs {
		switch b.Kind() {
		case bookmark.KindSeparator:
			fmt.Fprintf(w, "%s<HR>\n", indent)
		case bookmark.KindBookmark:
			fmt.Fprintf(w, "%s<DT><A HREF=\"%s\"%s>%s</A>\n",
				indent, stdhtml.EscapeString(b.URL), attrs(b), stdhtml.EscapeString(b.Title))
			if b.Description != "" {
				fmt.Fprintf(w, "%s<DD>%s\n", indent, stdhtml.EscapeString(b.Description))
			}
		default:
			fmt.Fprintf(w, "%s<DT><H3%s>%s</H3>\n", indent, attrs(b), stdhtml.EscapeString(b.Title))
			fmt.Fprintf(w, "%s<DL><p>\n", indent)
			writeEntries(w, b.Children, depth+1)
			fmt.Fprintf(w, "%s</DL><p>\n", indent)
		}
	}
}

func attrs(b bookmark.Bookmark) string {
	var sb strings.Builder
	if b.DateAdded > 0 {
		fmt.Fprintf(&sb, " ADD_DATE=\"%d\"", b.DateAdded/1000)
	}
	if len(b.Tags) > 0 {
		fmt.Fprintf(&sb, " TAGS=\"%s\"", stdhtml.EscapeString(strings.Join(b.Tags, ",")))
	}
	return sb.String()
}

type htmlNode struct {
	b        bookmark.Bookmark
	children []*htmlNode
}

// ParseHTML parses a Netscape bookmark file. Folders come from <H3>
// headings followed by a <DL> list, bookmarks from <A HREF> links,
// descriptions from <DD> and separators from <HR>.
func ParseHTML(r io.Reader) ([]bookmark.Bookmark, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html backup")
	}

	root := &htmlNode{}
	stack := []*htmlNode{root}
	var pending *htmlNode // folder whose <DL> has not started yet
	var last *htmlNode    // most recent bookmark, for <DD>

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		pushed := false
		if n.Type == html.ElementNode {
			top := stack[len(stack)-1]
			switch n.Data {
			case "h3":
				f := &htmlNode{b: bookmark.Bookmark{Title: strings.TrimSpace(textOf(n))}}
				applyAttrs(&f.b, n)
				top.children = append(top.children, f)
				pending, last = f, nil
				return
			case "a":
				b := &htmlNode{b: bookmark.Bookmark{Title: strings.TrimSpace(textOf(n)), URL: attr(n, "href")}}
				applyAttrs(&b.b, n)
				if b.b.URL != "" {
					top.children = append(top.children, b)
					last = b
				}
				return
			case "dd":
				if last != nil {
					last.b.Description = strings.TrimSpace(ownText(n))
				}
			case "hr":
				top.children = append(top.children, &htmlNode{})
				last = nil
			case "dl":
				if pending != nil {
					stack = append(stack, pending)
					pending, pushed = nil, true
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if pushed {
			stack = stack[:len(stack)-1]
		}
	}
	walk(doc)

	return toBookmarks(root.children), nil
}

func toBookmarks(nodes []*htmlNode) []bookmark.Bookmark {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]bookmark.Bookmark, len(nodes))
	for i, n := range nodes {
		out[i] = n.b
		out[i].Children = toBookmarks(n.children)
	}
	return out
}

func applyAttrs(b *bookmark.Bookmark, n *html.Node) {
	if v := attr(n, "add_date"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			b.DateAdded = secs * 1000
		}
	}
	if v := attr(n, "tags"); v != "" {
		b.Tags = bookmark.NormalizeTags(strings.Split(v, ","))
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf concatenates all text below n.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

// ownText concatenates the direct text children of n.
func ownText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
