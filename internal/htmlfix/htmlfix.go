// Package htmlfix cleans up product content markup.
package htmlfix

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/store"
)

// UnwrapListParagraphs removes every <p> element found inside an <li>, keeping its
// children in place. It returns the rewritten fragment and the number of <p> removed.
// When nothing is removed the input comes back unchanged.
func UnwrapListParagraphs(fragment string) (string, int, error) {
	if strings.TrimSpace(fragment) == "" {
		return fragment, 0, nil
	}
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return fragment, 0, fmt.Errorf("htmlfix: parse: %w", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	var targets []*html.Node
	var walk func(n *html.Node, inItem bool)
	walk = func(n *html.Node, inItem bool) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.P && inItem {
				targets = append(targets, n)
			}
			if n.DataAtom == atom.Li {
				inItem = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inItem)
		}
	}
	walk(container, false)
	if len(targets) == 0 {
		return fragment, 0, nil
	}

	for i := len(targets) - 1; i >= 0; i-- {
		p := targets[i]
		parent := p.Parent
		for p.FirstChild != nil {
			child := p.FirstChild
			p.RemoveChild(child)
			parent.InsertBefore(child, p)
		}
		parent.RemoveChild(p)
	}

	var buf bytes.Buffer
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return fragment, 0, fmt.Errorf("htmlfix: render: %w", err)
		}
	}
	return buf.String(), len(targets), nil
}

// StripTags returns the text content of a fragment, dropping script and style bodies.
func StripTags(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawText(name []byte) bool {
	s := string(name)
	return s == "script" || s == "style"
}

// Options selects the products a Fixer goes through.
type Options struct {
	Run      bool // without Run nothing is written
	ID       int64
	Limit    int
	Statuses []domain.Status
	Batch    int
}

// Report counts what a pass did or would do.
type Report struct {
	Scanned   int `json:"scanned"`
	Changed   int `json:"changed"`
	Unwrapped int `json:"unwrapped"`
	Errors    int `json:"errors"`
}

// Fixer rewrites product content in batches.
type Fixer struct {
	products store.ProductStorer
	log      zerolog.Logger
	// Tick, when set, is called after each product.
	Tick func()
}

func NewFixer(products store.ProductStorer, log zerolog.Logger) *Fixer {
	return &Fixer{products: products, log: log}
}

// Run unwraps list paragraphs in the content of the selected products.
func (f *Fixer) Run(ctx context.Context, opts Options) (Report, error) {
	var rep Report
	batch := opts.Batch
	if batch <= 0 {
		batch = 200
	}
	params := store.ListProductsParams{Statuses: opts.Statuses}
	if opts.ID > 0 {
		params.IDs = []int64{opts.ID}
	}

	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		params.Limit = batch
		if opts.Limit > 0 {
			remaining := opts.Limit - rep.Scanned
			if remaining <= 0 {
				break
			}
			if remaining < params.Limit {
				params.Limit = remaining
			}
		}
		params.Offset = offset
		page, err := f.products.ListProducts(ctx, params)
		if err != nil {
			return rep, err
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			f.fixOne(ctx, p, opts.Run, &rep)
			if f.Tick != nil {
				f.Tick()
			}
		}
		if len(page) < params.Limit {
			break
		}
	}
	return rep, nil
}

func (f *Fixer) fixOne(ctx context.Context, p domain.Product, run bool, rep *Report) {
	rep.Scanned++
	if p.Content == "" {
		return
	}
	fixed, removed, err := UnwrapListParagraphs(p.Content)
	if err != nil {
		f.log.Debug().Err(err).Int64("id", p.ID).Msg("content left as is")
		return
	}
	if removed == 0 || fixed == p.Content {
		return
	}
	f.log.Debug().Int64("id", p.ID).Msgf("[ID %d] <p> removed: %d", p.ID, removed)
	if run {
		_, err := f.products.UpdateProduct(ctx, p.ID, domain.ProductFields{Title: p.Title, Status: p.Status, Content: &fixed})
		if err != nil {
			rep.Errors++
			f.log.Warn().Err(err).Msgf("[ID %d] update failed", p.ID)
			return
		}
	}
	rep.Changed++
	rep.Unwrapped += removed
}
