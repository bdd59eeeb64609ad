package store

// FlowRollup is one aggregate record per flow: baseline fields from the
// flow's metadata row plus counts summed across its weekly message rows.
// The rate fields are derived from the summed counts at aggregation time;
// stale rates stored on the metadata row are never carried over.
type FlowRollup struct {
	FlowID      string  `json:"flow_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	TriggerType string  `json:"trigger_type"`
	Recipients  int64   `json:"recipients"`
	Delivered   int64   `json:"delivered"`
	Opens       int64   `json:"opens"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`

	OpenRate            float64 `json:"open_rate"`
	ClickRate           float64 `json:"click_rate"`
	RevenuePerRecipient float64 `json:"revenue_per_recipient"`
	AverageOrderValue   float64 `json:"average_order_value"`
}

// aggregateFlows combines flow metadata with weekly message rows. Every
// flow in the metadata appears in the output, including flows with zero
// matching weekly rows (all-zero derived fields). Weekly rows for unknown
// flows are ignored.
func aggregateFlows(flows []FlowMetric, weekly []FlowMessageMetric) []FlowRollup {
	sums := make(map[string]*FlowRollup, len(flows))
	out := make([]FlowRollup, 0, len(flows))

	for _, f := range flows {
		out = append(out, FlowRollup{
			FlowID:      f.FlowID,
			Name:        f.Name,
			Status:      f.Status,
			TriggerType: f.TriggerType,
		})
		sums[f.FlowID] = &out[len(out)-1]
	}

	for _, w := range weekly {
		r, ok := sums[w.FlowID]
		if !ok {
			continue
		}
		r.Recipients += w.Recipients
		r.Delivered += w.Delivered
		r.Opens += w.Opens
		r.Clicks += w.Clicks
		r.Conversions += w.Conversions
		r.Revenue += w.Revenue
	}

	for i := range out {
		r := &out[i]
		r.OpenRate = ratio(float64(r.Opens), float64(r.Recipients))
		r.ClickRate = ratio(float64(r.Clicks), float64(r.Recipients))
		r.RevenuePerRecipient = ratio(r.Revenue, float64(r.Recipients))
		r.AverageOrderValue = ratio(r.Revenue, float64(r.Conversions))
	}

	return out
}

// ratio returns num/den, or 0 when the denominator is zero.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
