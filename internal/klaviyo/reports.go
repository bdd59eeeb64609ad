package klaviyo

import (
	"fmt"
	"strings"
	"time"
)

// Report builders are pure: they produce the JSON:API request body for one
// analytics report type and perform no I/O. The statistic sets are the full
// sets the reporting API supports for each entity.

// Timeframe selects the report window: either a named key ("last_365_days")
// or an explicit start/end pair. Key wins when both are set.
type Timeframe struct {
	Key   string
	Start *time.Time
	End   *time.Time
}

// LastNDays returns the named timeframe for the standard windows the
// reporting API accepts.
func LastNDays(days int) Timeframe {
	return Timeframe{Key: fmt.Sprintf("last_%d_days", days)}
}

func (t Timeframe) body() map[string]any {
	if t.Key != "" {
		return map[string]any{"key": t.Key}
	}
	tf := map[string]any{}
	if t.Start != nil {
		tf["start"] = t.Start.UTC().Format(time.RFC3339)
	}
	if t.End != nil {
		tf["end"] = t.End.UTC().Format(time.RFC3339)
	}
	return tf
}

// CampaignStatistics is the statistic set requested from campaign-values
// reports.
func CampaignStatistics() []string {
	return []string{
		"recipients",
		"delivered",
		"delivery_rate",
		"opens",
		"opens_unique",
		"open_rate",
		"clicks",
		"clicks_unique",
		"click_rate",
		"click_to_open_rate",
		"bounced",
		"bounce_rate",
		"failed",
		"unsubscribes",
		"unsubscribe_rate",
		"spam_complaints",
		"spam_complaint_rate",
		"conversions",
		"conversion_rate",
		"conversion_value",
		"revenue_per_recipient",
		"average_order_value",
	}
}

// FlowStatistics is the statistic set requested from flow-series reports.
func FlowStatistics() []string {
	return []string{
		"recipients",
		"delivered",
		"opens",
		"opens_unique",
		"open_rate",
		"clicks",
		"clicks_unique",
		"click_rate",
		"bounced",
		"unsubscribes",
		"conversions",
		"conversion_value",
		"revenue_per_recipient",
		"average_order_value",
	}
}

// idFilter renders the report filter expression selecting a set of ids,
// e.g. any(campaign_id,["a","b"]).
func idFilter(field string, ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf("any(%s,[%s])", field, strings.Join(quoted, ","))
}

// CampaignValuesQuery describes one campaign-values report request.
type CampaignValuesQuery struct {
	CampaignIDs        []string
	ConversionMetricID string
	Timeframe          Timeframe
}

// Body renders the JSON:API request body.
func (q CampaignValuesQuery) Body() map[string]any {
	attrs := map[string]any{
		"statistics": CampaignStatistics(),
		"timeframe":  q.Timeframe.body(),
		"filter":     idFilter("campaign_id", q.CampaignIDs),
	}
	if q.ConversionMetricID != "" {
		attrs["conversion_metric_id"] = q.ConversionMetricID
	}
	return map[string]any{
		"data": map[string]any{
			"type":       "campaign-values-report",
			"attributes": attrs,
		},
	}
}

// FlowSeriesQuery describes one flow-series report request. The weekly
// interval is fixed: the persisted flow-message rows are keyed by ISO week.
type FlowSeriesQuery struct {
	FlowID             string
	ConversionMetricID string
	Timeframe          Timeframe
}

// Body renders the JSON:API request body.
func (q FlowSeriesQuery) Body() map[string]any {
	attrs := map[string]any{
		"statistics": FlowStatistics(),
		"timeframe":  q.Timeframe.body(),
		"interval":   "weekly",
		"filter":     fmt.Sprintf("equals(flow_id,%q)", q.FlowID),
	}
	if q.ConversionMetricID != "" {
		attrs["conversion_metric_id"] = q.ConversionMetricID
	}
	return map[string]any{
		"data": map[string]any{
			"type":       "flow-series-report",
			"attributes": attrs,
		},
	}
}

// MetricAggregateQuery describes one metric-aggregates request against the
// conversion metric, grouped by attribution dimensions.
type MetricAggregateQuery struct {
	MetricID  string
	GroupBy   []string
	Filters   []string
	Timeframe Timeframe
}

// Body renders the JSON:API request body.
func (q MetricAggregateQuery) Body() map[string]any {
	attrs := map[string]any{
		"metric_id":    q.MetricID,
		"measurements": []string{"sum_value", "count"},
		"interval":     "month",
		"timezone":     "UTC",
	}
	if len(q.GroupBy) > 0 {
		attrs["by"] = q.GroupBy
	}
	// Copy before appending so the caller's slice is never mutated through
	// shared backing capacity.
	filters := make([]string, 0, len(q.Filters)+2)
	filters = append(filters, q.Filters...)
	if q.Timeframe.Start != nil {
		filters = append(filters,
			fmt.Sprintf("greater-or-equal(datetime,%s)", q.Timeframe.Start.UTC().Format(time.RFC3339)))
	}
	if q.Timeframe.End != nil {
		filters = append(filters,
			fmt.Sprintf("less-than(datetime,%s)", q.Timeframe.End.UTC().Format(time.RFC3339)))
	}
	if len(filters) > 0 {
		attrs["filter"] = filters
	}
	return map[string]any{
		"data": map[string]any{
			"type":       "metric-aggregate",
			"attributes": attrs,
		},
	}
}
