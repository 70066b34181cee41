package sources

import (
	"context"
	"net/url"
	"strconv"
)

// cpscAdapter reads the US CPSC recall REST endpoint (JSON)
type cpscAdapter struct {
	s Settings
	c *Client
}

func newCPSC(s Settings, c *Client) Adapter { return &cpscAdapter{s: s, c: c} }

func (a *cpscAdapter) Name() string       { return "cpsc" }
func (a *cpscAdapter) Country() string    { return "US" }
func (a *cpscAdapter) Settings() Settings { return a.s }

type cpscRecall struct {
	RecallID     int64  `json:"RecallID"`
	RecallNumber string `json:"RecallNumber"`
	RecallDate   string `json:"RecallDate"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	URL          string `json:"URL"`
	Products     []struct {
		Name  string `json:"Name"`
		Model string `json:"Model"`
		UPC   string `json:"UPC"`
	} `json:"Products"`
	Hazards []struct {
		Name string `json:"Name"`
	} `json:"Hazards"`
	Remedies []struct {
		Name string `json:"Name"`
	} `json:"Remedies"`
	Manufacturers []struct {
		Name string `json:"Name"`
	} `json:"Manufacturers"`
}

func (a *cpscAdapter) Fetch(ctx context.Context, cursor string) (Page, error) {
	page, err := pageCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(a.s.PageSize))

	var recalls []cpscRecall
	if err := a.c.GetJSON(ctx, a.s.BaseURL+"/Recall", q, &recalls); err != nil {
		return Page{}, err
	}

	out := Page{Records: make([]RawRecallRecord, 0, len(recalls))}
	for _, r := range recalls {
		rec := RawRecallRecord{
			Agency:         a.Name(),
			SourceNativeID: r.RecallNumber,
			Title:          r.Title,
			HazardText:     joinNames(r.Hazards),
			Remedy:         joinNames(r.Remedies),
			RawDate:        r.RecallDate,
			DateFormats:    []string{"2006-01-02T15:04:05", "2006-01-02"},
			Country:        a.Country(),
			SourceURL:      r.URL,
		}
		if rec.SourceNativeID == "" {
			rec.SourceNativeID = strconv.FormatInt(r.RecallID, 10)
		}
		if rec.HazardText == "" {
			rec.HazardText = r.Description
		}
		if len(r.Products) > 0 {
			rec.ProductName = r.Products[0].Name
			rec.Model = r.Products[0].Model
			rec.UPC = r.Products[0].UPC
		}
		if rec.ProductName == "" {
			rec.ProductName = r.Title
		}
		if len(r.Manufacturers) > 0 {
			rec.Brand = r.Manufacturers[0].Name
		}
		out.Records = append(out.Records, rec)
	}

	if len(recalls) >= a.s.PageSize {
		out.NextCursor = nextPageCursor(page)
		out.HasMore = true
	}
	return out, nil
}

func joinNames(items []struct {
	Name string `json:"Name"`
}) string {
	s := ""
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		if s != "" {
			s += "; "
		}
		s += it.Name
	}
	return s
}
