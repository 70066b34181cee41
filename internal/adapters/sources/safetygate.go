package sources

import (
	"context"
	"net/url"
	"strconv"
)

// safetyGateAdapter reads the EU Safety Gate alerts feed (XML)
type safetyGateAdapter struct {
	s Settings
	c *Client
}

func newSafetyGate(s Settings, c *Client) Adapter { return &safetyGateAdapter{s: s, c: c} }

func (a *safetyGateAdapter) Name() string       { return "safetygate" }
func (a *safetyGateAdapter) Country() string    { return "EU" }
func (a *safetyGateAdapter) Settings() Settings { return a.s }

type safetyGateFeed struct {
	Total  int `xml:"total,attr"`
	Alerts []struct {
		Reference       string `xml:"reference"`
		PublicationDate string `xml:"publicationDate"`
		Link            string `xml:"link"`
		Product         struct {
			Name        string `xml:"name"`
			Brand       string `xml:"brand"`
			Model       string `xml:"model"`
			Barcode     string `xml:"barcode"`
			BatchNumber string `xml:"batchNumber"`
		} `xml:"product"`
		Risk struct {
			Description string `xml:"description"`
		} `xml:"risk"`
		Measures string `xml:"measures"`
	} `xml:"alert"`
}

func (a *safetyGateAdapter) Fetch(ctx context.Context, cursor string) (Page, error) {
	page, err := pageCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(a.s.PageSize))

	var feed safetyGateFeed
	if err := a.c.GetXML(ctx, a.s.BaseURL+"/notification/alerts", q, &feed); err != nil {
		return Page{}, err
	}

	out := Page{Records: make([]RawRecallRecord, 0, len(feed.Alerts))}
	for _, al := range feed.Alerts {
		out.Records = append(out.Records, RawRecallRecord{
			Agency:         a.Name(),
			SourceNativeID: al.Reference,
			Title:          al.Product.Name,
			ProductName:    al.Product.Name,
			Brand:          al.Product.Brand,
			HazardText:     al.Risk.Description,
			Remedy:         al.Measures,
			RawDate:        al.PublicationDate,
			DateFormats:    []string{"02/01/2006", "2006-01-02"},
			UPC:            al.Product.Barcode,
			Model:          al.Product.Model,
			Lot:            al.Product.BatchNumber,
			Country:        a.Country(),
			SourceURL:      al.Link,
		})
	}

	if (page+1)*a.s.PageSize < feed.Total {
		out.NextCursor = nextPageCursor(page)
		out.HasMore = true
	}
	return out, nil
}
