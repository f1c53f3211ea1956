package models

// Requests and responses for the chart HTTP endpoints. Defined in domain for
// consistency and reuse.

type ChartRequest struct {
	Granularity string `query:"granularity" json:"granularity" default:"1m" validate:"oneof=1m 5m 30m 1h D"`
	Page        int    `query:"page" json:"page" default:"0" validate:"gte=0"`
	Limit       int    `query:"limit" json:"limit" default:"500" validate:"gt=0,lte=20000"`
}

type ChartResponse struct {
	Points   []Bucket `json:"points"`
	Latest   *Tick    `json:"latest,omitempty"`
	Page     int      `json:"page"`
	NextPage *int     `json:"nextPage,omitempty"`
	HasMore  bool     `json:"hasMore"`
}
