package collect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// GrantsGovCollector fetches opportunities from the Grants.gov search2 API.
type GrantsGovCollector struct {
	cfg    SourceConfig
	client *httpClient
}

func NewGrantsGovCollector(cfg SourceConfig) *GrantsGovCollector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &GrantsGovCollector{cfg: cfg, client: newHTTPClient(cfg.Fetch)}
}

func (c *GrantsGovCollector) Name() string { return c.cfg.ID }

type grantsGovSearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	SortBy         string `json:"sortBy"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

type grantsGovResponse struct {
	Data struct {
		HitCount int               `json:"hitCount"`
		OppHits  []grantsGovRecord `json:"oppHits"`
	} `json:"data"`
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
}

type grantsGovRecord struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	Title        string `json:"title"`
	Agency       string `json:"agency"`
	OpenDate     string `json:"openDate"`  // MM/DD/YYYY
	CloseDate    string `json:"closeDate"` // MM/DD/YYYY
	OppStatus    string `json:"oppStatus"`
	AwardFloor   string `json:"awardFloor"`
	AwardCeiling string `json:"awardCeiling"`
}

// Fetch pages through the search2 API.
func (c *GrantsGovCollector) Fetch(ctx context.Context) ([]RawRecord, error) {
	const rows = 100
	var records []RawRecord

	for page := 0; page < c.cfg.MaxPages; page++ {
		req := grantsGovSearchRequest{
			Keyword:        c.cfg.Keyword,
			OppStatuses:    "posted|forecasted",
			SortBy:         "openDate|desc",
			Rows:           rows,
			StartRecordNum: page * rows,
		}

		var resp grantsGovResponse
		if err := c.client.postJSON(ctx, c.cfg.BaseURL, req, &resp); err != nil {
			return nil, err
		}
		if resp.ErrorCode != 0 {
			return nil, eris.Errorf("collect: grants.gov error: %s", resp.Msg)
		}
		if len(resp.Data.OppHits) == 0 {
			break
		}

		for _, hit := range resp.Data.OppHits {
			rec := RawRecord{
				SourceSystem: c.cfg.ID,
				ExternalID:   hit.ID,
				Title:        hit.Title,
				Program:      hit.Number,
				Synopsis:     fmt.Sprintf("Federal grant from %s", hit.Agency),
				Currency:     "USD",
				RawStatus:    hit.OppStatus,
				RawDeadline:  hit.CloseDate,
				SourceURL:    fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", hit.ID),
			}

			if t, err := time.Parse("01/02/2006", hit.OpenDate); err == nil {
				tu := t.UTC()
				rec.OpenDate = &tu
			}
			if t, err := time.Parse("01/02/2006", hit.CloseDate); err == nil {
				// Close dates are bare dates; they expire at end of day.
				tu := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
				rec.Deadline = &tu
			}
			if v, ok := parseUSDAmount(hit.AwardFloor); ok {
				rec.BudgetMin = &v
			}
			if v, ok := parseUSDAmount(hit.AwardCeiling); ok {
				rec.BudgetMax = &v
			}

			records = append(records, rec)
		}

		zap.L().Debug("grants.gov page fetched",
			zap.String("source", c.cfg.ID),
			zap.Int("page", page),
			zap.Int("records", len(records)),
			zap.Int("total", resp.Data.HitCount),
		)

		if len(records) >= resp.Data.HitCount {
			break
		}
	}

	return records, nil
}

// parseUSDAmount strips currency formatting from values like "$1,500,000".
func parseUSDAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return 0, false
	}
	clean := strings.NewReplacer("$", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
