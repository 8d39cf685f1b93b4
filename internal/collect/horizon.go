package collect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// HorizonCollector fetches grant topics from the EU Funding & Tenders portal
// search API.
type HorizonCollector struct {
	cfg    SourceConfig
	client *httpClient
}

func NewHorizonCollector(cfg SourceConfig) *HorizonCollector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &HorizonCollector{cfg: cfg, client: newHTTPClient(cfg.Fetch)}
}

func (c *HorizonCollector) Name() string { return c.cfg.ID }

type horizonSearchRequest struct {
	Query    string   `json:"query"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
	Status   []string `json:"status"`
}

type horizonResponse struct {
	FundingOpportunities []horizonTopic `json:"fundingOpportunities"`
	TotalCount           int            `json:"totalCount"`
}

type horizonTopic struct {
	TopicIdentifier string   `json:"topicIdentifier"`
	CallIdentifier  string   `json:"callIdentifier"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Status          string   `json:"status"` // "OPEN", "CLOSED", "FORTHCOMING", "CANCELLED"
	Programme       string   `json:"programme"`
	Budget          string   `json:"budget"` // often "1.000.000" style text
	DeadlineDate    []int64  `json:"deadlineDate"`
	OpeningDate     []int64  `json:"openingDate"`
	Keywords        []string `json:"keywords"`
	Countries       []string `json:"eligibleCountries"`
	Targets         []string `json:"targetGroups"`
}

// Fetch pages through the portal search API until it runs out of results or
// hits the configured page cap.
func (c *HorizonCollector) Fetch(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord
	pageSize := 50

	for page := 1; page <= c.cfg.MaxPages; page++ {
		req := horizonSearchRequest{
			Query:    c.cfg.Keyword,
			Page:     page,
			PageSize: pageSize,
			Status:   []string{"OPEN", "FORTHCOMING"},
		}

		var resp horizonResponse
		if err := c.client.postJSON(ctx, c.cfg.BaseURL, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.FundingOpportunities) == 0 {
			break
		}

		for _, topic := range resp.FundingOpportunities {
			rec := RawRecord{
				SourceSystem: c.cfg.ID,
				ExternalID:   topic.TopicIdentifier,
				Title:        topic.Title,
				Program:      topic.Programme,
				Synopsis:     topic.Description,
				Description:  topic.Description,
				RawBudget:    topic.Budget,
				Currency:     "EUR",
				RawStatus:    topic.Status,
				Keywords:     topic.Keywords,
				SourceURL: fmt.Sprintf(
					"https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/topic-details/%s",
					topic.TopicIdentifier),
				EligibleCountries:   topic.Countries,
				TargetOrganizations: topic.Targets,
			}
			if rec.Program == "" {
				rec.Program = topic.CallIdentifier
			}

			// Portal timestamps are milliseconds.
			if len(topic.DeadlineDate) > 0 && topic.DeadlineDate[0] > 0 {
				t := time.UnixMilli(topic.DeadlineDate[0]).UTC()
				rec.Deadline = &t
			}
			if len(topic.OpeningDate) > 0 && topic.OpeningDate[0] > 0 {
				t := time.UnixMilli(topic.OpeningDate[0]).UTC()
				rec.OpenDate = &t
			}

			records = append(records, rec)
		}

		zap.L().Debug("horizon page fetched",
			zap.String("source", c.cfg.ID),
			zap.Int("page", page),
			zap.Int("records", len(records)),
			zap.Int("total", resp.TotalCount),
		)

		if len(records) >= resp.TotalCount {
			break
		}
	}

	return records, nil
}
