package kb

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// IngestHTML sanitizes an HTML page, extracts its visible text, and stores it
// as a document under the given id and category.
func (s *Store) IngestHTML(id, category string, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	clean := bluemonday.UGCPolicy().SanitizeBytes(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(clean)))
	if err != nil {
		return err
	}
	doc.Find("script, style").Remove()
	text := collapseWhitespace(doc.Text())
	return s.AddDocument(Document{ID: id, Category: category, Content: text})
}

// IngestMarkdown extracts the plain text of a Markdown source and stores it
// as a document under the given id and category.
func (s *Store) IngestMarkdown(id, category string, source []byte) error {
	p := parser.New()
	root := p.Parse(source)

	var sb strings.Builder
	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if leaf := node.AsLeaf(); leaf != nil && len(leaf.Literal) > 0 {
			sb.Write(leaf.Literal)
			sb.WriteByte(' ')
		}
		return ast.GoToNext
	})

	text := collapseWhitespace(sb.String())
	return s.AddDocument(Document{ID: id, Category: category, Content: text})
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
