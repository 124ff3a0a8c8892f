// Package parser extracts readable content from crawled HTML documents.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Extractor names recorded on every page.
const (
	ExtractorSelector = "selector"
	ExtractorDocument = "document"
)

// ErrSelectorNotFound is returned when the requested selector matches
// nothing in the document.
var ErrSelectorNotFound = errors.New("selector not found")

// documentNoise is removed before reading the whole body.
const documentNoise = "script, style, nav, noscript, template"

// elementNoise is removed from a selected element.
const elementNoise = "script, style, noscript, template"

// Options controls what Extract produces.
type Options struct {
	Selector        string
	IncludeHTML     bool
	IncludeMarkdown bool
}

// Content is the readable content of one page.
type Content struct {
	Title       string
	Description string
	Text        string
	HTML        string
	Markdown    string
	Extractor   string
}

// Extract reads title, description and text from htmlContent. With a
// selector the first matching element is read; otherwise the body without
// navigation and script noise.
func Extract(htmlContent, pageURL string, opts Options) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	content := &Content{
		Title:       title(doc),
		Description: description(doc),
	}

	var sel *goquery.Selection
	if opts.Selector != "" {
		sel = doc.Find(opts.Selector).First()
		if sel.Length() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, opts.Selector)
		}
		sel.Find(elementNoise).Remove()
		content.Extractor = ExtractorSelector
	} else {
		sel = doc.Find("body").First()
		sel.Find(documentNoise).Remove()
		content.Extractor = ExtractorDocument
	}

	content.Text = normalizeText(sel.Text())

	if opts.IncludeHTML || opts.IncludeMarkdown {
		outer, err := goquery.OuterHtml(sel)
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		if opts.IncludeHTML {
			content.HTML = outer
		}
		if opts.IncludeMarkdown {
			markdown, err := toMarkdown(outer, pageURL)
			if err != nil {
				return nil, fmt.Errorf("convert markdown: %w", err)
			}
			content.Markdown = markdown
		}
	}

	return content, nil
}

func title(doc *goquery.Document) string {
	if t := normalizeText(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := normalizeText(og); t != "" {
			return t
		}
	}
	return normalizeText(doc.Find("h1").First().Text())
}

func description(doc *goquery.Document) string {
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if d, ok := doc.Find(selector).First().Attr("content"); ok {
			if d = normalizeText(d); d != "" {
				return d
			}
		}
	}
	return ""
}

// toMarkdown converts html; relative links are resolved against the page's
// host.
func toMarkdown(html, pageURL string) (string, error) {
	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Host
	}
	converter := md.NewConverter(domain, true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
