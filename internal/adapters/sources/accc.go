package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// acccAdapter scrapes the Product Safety Australia recall listing (HTML).
// The agency publishes no machine API so this one parses the public pages
type acccAdapter struct {
	s Settings
	c *Client
}

func newACCC(s Settings, c *Client) Adapter { return &acccAdapter{s: s, c: c} }

func (a *acccAdapter) Name() string       { return "accc" }
func (a *acccAdapter) Country() string    { return "AU" }
func (a *acccAdapter) Settings() Settings { return a.s }

func (a *acccAdapter) Fetch(ctx context.Context, cursor string) (Page, error) {
	page, err := pageCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))

	doc, err := a.c.GetHTML(ctx, a.s.BaseURL, q)
	if err != nil {
		return Page{}, err
	}

	out := Page{}
	doc.Find("article.recall-card").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.recall-title").First()
		href, _ := link.Attr("href")
		date, _ := card.Find("time").First().Attr("datetime")

		rec := RawRecallRecord{
			Agency:         a.Name(),
			SourceNativeID: text(card, ".recall-number"),
			Title:          strings.TrimSpace(link.Text()),
			ProductName:    strings.TrimSpace(link.Text()),
			Brand:          text(card, ".recall-brand"),
			HazardText:     text(card, ".recall-hazard"),
			Remedy:         text(card, ".recall-remedy"),
			Model:          text(card, ".recall-model"),
			RawDate:        date,
			DateFormats:    []string{"2006-01-02", "02 Jan 2006"},
			Country:        a.Country(),
			SourceURL:      absURL(a.s.BaseURL, href),
		}
		if rec.RawDate == "" {
			rec.RawDate = text(card, ".recall-date")
		}
		if rec.SourceNativeID == "" || rec.Title == "" {
			return // malformed card, skip rather than fail the page
		}
		out.Records = append(out.Records, rec)
	})

	if len(out.Records) >= a.s.PageSize {
		out.NextCursor = nextPageCursor(page)
		out.HasMore = true
	}
	return out, nil
}

func text(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}

// absURL resolves relative hrefs against the listing base
func absURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	r, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(r).String()
}
