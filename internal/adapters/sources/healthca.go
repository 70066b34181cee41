package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// healthCAAdapter reads the Health Canada recalls and alerts API (JSON).
// Dates arrive as epoch seconds; the adapter renders them to a single layout
type healthCAAdapter struct {
	s Settings
	c *Client
}

func newHealthCA(s Settings, c *Client) Adapter { return &healthCAAdapter{s: s, c: c} }

func (a *healthCAAdapter) Name() string       { return "healthca" }
func (a *healthCAAdapter) Country() string    { return "CA" }
func (a *healthCAAdapter) Settings() Settings { return a.s }

type healthCAResponse struct {
	Count   int `json:"count"`
	Results []struct {
		RecallID      string `json:"recallId"`
		Title         string `json:"title"`
		Category      string `json:"category"`
		DatePublished int64  `json:"date_published"`
		URL           string `json:"url"`
		Summary       string `json:"summary"`
	} `json:"results"`
}

func (a *healthCAAdapter) Fetch(ctx context.Context, cursor string) (Page, error) {
	page, err := pageCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	off := page * a.s.PageSize

	q := url.Values{}
	q.Set("search", "")
	q.Set("lang", "en")
	q.Set("lim", strconv.Itoa(a.s.PageSize))
	q.Set("off", strconv.Itoa(off))

	var resp healthCAResponse
	if err := a.c.GetJSON(ctx, a.s.BaseURL+"/search", q, &resp); err != nil {
		return Page{}, err
	}

	out := Page{Records: make([]RawRecallRecord, 0, len(resp.Results))}
	for _, r := range resp.Results {
		rec := RawRecallRecord{
			Agency:         a.Name(),
			SourceNativeID: r.RecallID,
			Title:          r.Title,
			ProductName:    r.Title,
			HazardText:     r.Summary,
			DateFormats:    []string{"2006-01-02"},
			Country:        a.Country(),
			SourceURL:      r.URL,
		}
		if r.DatePublished > 0 {
			rec.RawDate = time.Unix(r.DatePublished, 0).UTC().Format("2006-01-02")
		}
		out.Records = append(out.Records, rec)
	}

	if off+len(resp.Results) < resp.Count {
		out.NextCursor = nextPageCursor(page)
		out.HasMore = true
	}
	return out, nil
}
