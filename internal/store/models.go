package store

import "time"

// Client is one marketing-platform account under an agency. The Klaviyo API
// key is stored encrypted (iv:tag:ciphertext hex, AES-256-GCM).
type Client struct {
	ID              string
	AgencyID        string
	Name            string
	EncryptedAPIKey string
	IsActive        bool
	CreatedAt       time.Time
}

// CampaignMetric is one row per campaign per client, refreshed on every
// sync. EmailHTML is merge-on-missing: an upsert without a snapshot keeps
// the previously stored one.
type CampaignMetric struct {
	ClientID    string
	CampaignID  string
	Name        string
	Subject     string
	PreviewText string
	ImageURL    string
	EmailHTML   string
	SendDate    *time.Time

	Recipients     int64
	Delivered      int64
	Opens          int64
	UniqueOpens    int64
	Clicks         int64
	UniqueClicks   int64
	Bounced        int64
	Unsubscribes   int64
	SpamComplaints int64
	Conversions    int64

	OpenRate            float64
	ClickRate           float64
	BounceRate          float64
	UnsubscribeRate     float64
	SpamRate            float64
	ConversionRate      float64
	Revenue             float64
	RevenuePerRecipient float64
	AverageOrderValue   float64
}

// FlowMetric is one aggregate row per flow per date window.
type FlowMetric struct {
	ClientID    string
	FlowID      string
	Name        string
	Status      string
	TriggerType string
	DateStart   time.Time

	Recipients  int64
	Delivered   int64
	Opens       int64
	Clicks      int64
	Conversions int64

	OpenRate            float64
	ClickRate           float64
	Revenue             float64
	RevenuePerRecipient float64
	AverageOrderValue   float64
}

// FlowMessageMetric is the finest-grained unit: one row per flow message per
// ISO week, the source of truth for the weekly rollup.
type FlowMessageMetric struct {
	ClientID  string
	FlowID    string
	MessageID string
	WeekDate  time.Time

	Recipients  int64
	Delivered   int64
	Opens       int64
	Clicks      int64
	Conversions int64
	Revenue     float64
}

// AudienceMetric is a per-day subscriber snapshot with day-over-day growth.
type AudienceMetric struct {
	ClientID      string
	Date          time.Time
	TotalProfiles int64
	Subscribed    int64
	Unsubscribed  int64
	NetGrowth     int64
	GrowthRate    float64
}

// SegmentMetric is a per-day per-segment identity snapshot. ProfileCount is
// always zero: segment analytics are disabled upstream.
type SegmentMetric struct {
	ClientID     string
	SegmentID    string
	Name         string
	Date         time.Time
	ProfileCount int64
}

// DeliverabilityMetric is a per-day snapshot derived from persisted
// campaign and flow rows.
type DeliverabilityMetric struct {
	ClientID        string
	Date            time.Time
	TotalSent       int64
	TotalDelivered  int64
	TotalBounced    int64
	TotalSpam       int64
	DeliveryRate    float64
	BounceRate      float64
	SpamRate        float64
	ReputationScore float64
}

// RevenueAttributionMetric is a per-day channel/type revenue split. The
// stored total comes from its own upstream query and is never reconciled
// against the sum of the splits.
type RevenueAttributionMetric struct {
	ClientID        string
	Date            time.Time
	TotalRevenue    float64
	EmailRevenue    float64
	SMSRevenue      float64
	FlowRevenue     float64
	CampaignRevenue float64
	EmailPercent    float64
	SMSPercent      float64
	FlowPercent     float64
	CampaignPercent float64
}
