package klaviyo

import (
	"net/url"
	"time"
)

// The upstream API is JSON:API shaped: every list response carries
// data[].{id,attributes} plus links.next for cursor pagination. The raw
// envelope types below stay private; callers only see the flattened
// exported types.

type pageLinks struct {
	Next string `json:"next"`
}

// nextCursor extracts the opaque page[cursor] value from a links.next URL.
// Returns "" when there are no further pages.
func nextCursor(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return u.Query().Get("page[cursor]")
}

// ========== Campaigns ==========

// Campaign is one scheduled broadcast message.
type Campaign struct {
	ID        string
	Name      string
	Status    string
	Archived  bool
	SendTime  *time.Time
	CreatedAt *time.Time
}

type campaignListResponse struct {
	Data  []campaignResource `json:"data"`
	Links pageLinks          `json:"links"`
}

type campaignResource struct {
	ID         string             `json:"id"`
	Attributes campaignAttributes `json:"attributes"`
}

type campaignAttributes struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Archived  bool       `json:"archived"`
	SendTime  *time.Time `json:"send_time"`
	CreatedAt *time.Time `json:"created_at"`
}

func (r campaignResource) flatten() Campaign {
	return Campaign{
		ID:        r.ID,
		Name:      r.Attributes.Name,
		Status:    r.Attributes.Status,
		Archived:  r.Attributes.Archived,
		SendTime:  r.Attributes.SendTime,
		CreatedAt: r.Attributes.CreatedAt,
	}
}

// CampaignMessage holds the per-message detail used for display fields.
type CampaignMessage struct {
	ID          string
	Subject     string
	PreviewText string
	ImageURL    string
}

type campaignMessageResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Label   string `json:"label"`
			Content struct {
				Subject     string `json:"subject"`
				PreviewText string `json:"preview_text"`
			} `json:"content"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		Attributes struct {
			ImageURL string `json:"image_url"`
		} `json:"attributes"`
	} `json:"included"`
}

// ========== Flows ==========

// Flow is an automated multi-step sequence.
type Flow struct {
	ID          string
	Name        string
	Status      string
	Archived    bool
	TriggerType string
	CreatedAt   *time.Time
}

type flowListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name        string     `json:"name"`
			Status      string     `json:"status"`
			Archived    bool       `json:"archived"`
			TriggerType string     `json:"trigger_type"`
			CreatedAt   *time.Time `json:"created"`
		} `json:"attributes"`
	} `json:"data"`
	Links pageLinks `json:"links"`
}

// ========== Segments / Lists / Profiles ==========

// Segment is a dynamic audience segment. Only identity is synced; the
// segment analytics endpoints are intentionally unused (see SegmentSeries).
type Segment struct {
	ID   string
	Name string
}

type segmentListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
	Links pageLinks `json:"links"`
}

// List is a static subscriber list.
type List struct {
	ID   string
	Name string
}

type listListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
	Links pageLinks `json:"links"`
}

// Consent states for email marketing subscriptions.
const (
	ConsentSubscribed   = "SUBSCRIBED"
	ConsentUnsubscribed = "UNSUBSCRIBED"
)

// Profile is a list member with its email marketing consent state.
type Profile struct {
	ID      string
	Email   string
	Consent string
}

type profileListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Email         string `json:"email"`
			Subscriptions struct {
				Email struct {
					Marketing struct {
						Consent string `json:"consent"`
					} `json:"marketing"`
				} `json:"email"`
			} `json:"subscriptions"`
		} `json:"attributes"`
	} `json:"data"`
	Links pageLinks `json:"links"`
}

// ========== Metrics ==========

// Metric is an upstream event metric (e.g. "Placed Order").
type Metric struct {
	ID          string
	Name        string
	Integration string
}

type metricListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name        string `json:"name"`
			Integration struct {
				Name string `json:"name"`
			} `json:"integration"`
		} `json:"attributes"`
	} `json:"data"`
	Links pageLinks `json:"links"`
}

// ========== Events ==========

// Event is a single tracked event, used by the diagnostics harness.
type Event struct {
	ID        string
	MetricID  string
	Timestamp *time.Time
}

type eventListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Timestamp *time.Time `json:"datetime"`
		} `json:"attributes"`
		Relationships struct {
			Metric struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"metric"`
		} `json:"relationships"`
	} `json:"data"`
}

// ========== Report results ==========

// CampaignStats is one row of a campaign-values report.
type CampaignStats struct {
	CampaignID string
	Stats      map[string]float64
}

type campaignValuesResponse struct {
	Data struct {
		Attributes struct {
			Results []struct {
				Groupings  map[string]string  `json:"groupings"`
				Statistics map[string]float64 `json:"statistics"`
			} `json:"results"`
		} `json:"attributes"`
	} `json:"data"`
}

// FlowSeriesResult is a weekly time series per flow message.
type FlowSeriesResult struct {
	// DateTimes are the interval start times, oldest first.
	DateTimes []time.Time
	Results   []FlowSeriesRow
}

// FlowSeriesRow carries per-interval values for each statistic, aligned
// with FlowSeriesResult.DateTimes.
type FlowSeriesRow struct {
	FlowID        string
	FlowMessageID string
	Statistics    map[string][]float64
}

type flowSeriesResponse struct {
	Data struct {
		Attributes struct {
			DateTimes []time.Time `json:"date_times"`
			Results   []struct {
				Groupings  map[string]string    `json:"groupings"`
				Statistics map[string][]float64 `json:"statistics"`
			} `json:"results"`
		} `json:"attributes"`
	} `json:"data"`
}

// SegmentSeriesResult mirrors the upstream segment-series report shape but
// is only ever produced empty; see Client.SegmentSeries.
type SegmentSeriesResult struct {
	Data []FlowSeriesRow `json:"data"`
}

// MetricAggregateRow is one grouped measurement row.
type MetricAggregateRow struct {
	Dimensions   []string
	Measurements map[string][]float64
}

// MetricAggregateResult is the response of a metric-aggregates query.
type MetricAggregateResult struct {
	Dates []time.Time
	Rows  []MetricAggregateRow
}

type metricAggregateResponse struct {
	Data struct {
		Attributes struct {
			Dates []time.Time `json:"dates"`
			Data  []struct {
				Dimensions   []string             `json:"dimensions"`
				Measurements map[string][]float64 `json:"measurements"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}
