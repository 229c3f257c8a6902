package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gbilton/elections-2022/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const catalogColumn = "UF"

// CatalogSource reads unit codes from the first HTML table of a page, using
// the column headed "UF" (or the first column when no such header exists).
type CatalogSource struct {
	client *Client
	url    string
}

func NewCatalogSource(client *Client, url string) *CatalogSource {
	return &CatalogSource{client: client, url: url}
}

func (s *CatalogSource) FetchCodes(ctx context.Context) ([]domain.UnitCode, error) {
	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}
	return ParseCatalogTable(body)
}

// ParseCatalogTable extracts the unit codes from an HTML document. It does not
// validate them.
func ParseCatalogTable(page []byte) ([]domain.UnitCode, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog page: %w", err)
	}

	table := findFirst(doc, atom.Table)
	if table == nil {
		return nil, errors.New("catalog page has no table")
	}

	rows := collectRows(table)
	if len(rows) == 0 {
		return nil, errors.New("catalog table has no rows")
	}

	column := 0
	header := rows[0]
	if header.isHeader {
		for i, cell := range header.cells {
			if strings.EqualFold(cell, catalogColumn) {
				column = i
				break
			}
		}
		rows = rows[1:]
	}

	codes := make([]domain.UnitCode, 0, len(rows))
	for _, row := range rows {
		if column >= len(row.cells) {
			continue
		}
		if code := strings.TrimSpace(row.cells[column]); code != "" {
			codes = append(codes, domain.UnitCode(code))
		}
	}
	return codes, nil
}

type tableRow struct {
	cells    []string
	isHeader bool
}

func collectRows(table *html.Node) []tableRow {
	var rows []tableRow
	walk(table, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Tr {
			return true
		}
		row := tableRow{}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Th:
				row.isHeader = true
				row.cells = append(row.cells, textContent(c))
			case atom.Td:
				row.cells = append(row.cells, textContent(c))
			}
		}
		if len(row.cells) > 0 {
			rows = append(rows, row)
		}
		return false
	})
	return rows
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits n depth-first; visit returns false to skip a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}
