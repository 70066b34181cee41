package sources

import (
	"context"
	"net/url"
	"strconv"
)

// fdaAdapter reads the openFDA enforcement endpoint (JSON, skip/limit pages)
type fdaAdapter struct {
	s Settings
	c *Client
}

func newFDA(s Settings, c *Client) Adapter { return &fdaAdapter{s: s, c: c} }

func (a *fdaAdapter) Name() string       { return "fda" }
func (a *fdaAdapter) Country() string    { return "US" }
func (a *fdaAdapter) Settings() Settings { return a.s }

type fdaResponse struct {
	Meta struct {
		Results struct {
			Skip  int `json:"skip"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []struct {
		RecallNumber       string `json:"recall_number"`
		ProductDescription string `json:"product_description"`
		ReasonForRecall    string `json:"reason_for_recall"`
		RecallingFirm      string `json:"recalling_firm"`
		InitiationDate     string `json:"recall_initiation_date"`
		CodeInfo           string `json:"code_info"`
		EventID            string `json:"event_id"`
	} `json:"results"`
}

func (a *fdaAdapter) Fetch(ctx context.Context, cursor string) (Page, error) {
	page, err := pageCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	skip := page * a.s.PageSize

	q := url.Values{}
	q.Set("limit", strconv.Itoa(a.s.PageSize))
	q.Set("skip", strconv.Itoa(skip))

	var resp fdaResponse
	if err := a.c.GetJSON(ctx, a.s.BaseURL+"/food/enforcement.json", q, &resp); err != nil {
		return Page{}, err
	}

	out := Page{Records: make([]RawRecallRecord, 0, len(resp.Results))}
	for _, r := range resp.Results {
		out.Records = append(out.Records, RawRecallRecord{
			Agency:         a.Name(),
			SourceNativeID: r.RecallNumber,
			Title:          r.ProductDescription,
			ProductName:    r.ProductDescription,
			Brand:          r.RecallingFirm,
			HazardText:     r.ReasonForRecall,
			RawDate:        r.InitiationDate,
			DateFormats:    []string{"20060102"},
			Lot:            r.CodeInfo,
			Country:        a.Country(),
			SourceURL:      "https://www.fda.gov/safety/recalls/" + r.EventID,
		})
	}

	if skip+len(resp.Results) < resp.Meta.Results.Total {
		out.NextCursor = nextPageCursor(page)
		out.HasMore = true
	}
	return out, nil
}
