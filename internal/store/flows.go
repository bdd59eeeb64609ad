package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
)

// UpsertFlowMetric inserts or refreshes one flow aggregate row, keyed on
// (client_id, flow_id, date_start).
func (s *Store) UpsertFlowMetric(ctx context.Context, m FlowMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_metrics (
			client_id, flow_id, name, status, trigger_type, date_start,
			recipients, delivered, opens, clicks, conversions,
			open_rate, click_rate, revenue, revenue_per_recipient,
			average_order_value, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (client_id, flow_id, date_start) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			recipients = EXCLUDED.recipients,
			delivered = EXCLUDED.delivered,
			opens = EXCLUDED.opens,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			revenue = EXCLUDED.revenue,
			revenue_per_recipient = EXCLUDED.revenue_per_recipient,
			average_order_value = EXCLUDED.average_order_value,
			updated_at = NOW()
	`,
		m.ClientID, m.FlowID, m.Name, m.Status, m.TriggerType, m.DateStart,
		m.Recipients, m.Delivered, m.Opens, m.Clicks, m.Conversions,
		m.OpenRate, m.ClickRate, m.Revenue, m.RevenuePerRecipient,
		m.AverageOrderValue,
	)
	if err != nil {
		return fmt.Errorf("upsert flow metric %s: %w", m.FlowID, err)
	}
	return nil
}

// UpsertFlowMessageMetric inserts or refreshes one weekly per-message row,
// keyed on (client_id, message_id, week_date).
func (s *Store) UpsertFlowMessageMetric(ctx context.Context, m FlowMessageMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_message_metrics (
			client_id, flow_id, message_id, week_date,
			recipients, delivered, opens, clicks, conversions, revenue, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (client_id, message_id, week_date) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			recipients = EXCLUDED.recipients,
			delivered = EXCLUDED.delivered,
			opens = EXCLUDED.opens,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			revenue = EXCLUDED.revenue,
			updated_at = NOW()
	`,
		m.ClientID, m.FlowID, m.MessageID, m.WeekDate,
		m.Recipients, m.Delivered, m.Opens, m.Clicks, m.Conversions, m.Revenue,
	)
	if err != nil {
		return fmt.Errorf("upsert flow message metric %s/%s: %w", m.MessageID, m.WeekDate.Format("2006-01-02"), err)
	}
	return nil
}

// FlowMetrics returns the latest aggregate row per flow for a client.
// Failures degrade to an empty result.
func (s *Store) FlowMetrics(ctx context.Context, clientID string) []FlowMetric {
	var out []FlowMetric
	err := readPages(func(limit, offset int) (int, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT ON (flow_id)
			       client_id, flow_id, name, status, trigger_type, date_start,
			       recipients, delivered, opens, clicks, conversions,
			       open_rate, click_rate, revenue, revenue_per_recipient, average_order_value
			FROM flow_metrics
			WHERE client_id = $1
			ORDER BY flow_id, date_start DESC
			LIMIT $2 OFFSET $3
		`, clientID, limit, offset)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var m FlowMetric
			if err := rows.Scan(
				&m.ClientID, &m.FlowID, &m.Name, &m.Status, &m.TriggerType, &m.DateStart,
				&m.Recipients, &m.Delivered, &m.Opens, &m.Clicks, &m.Conversions,
				&m.OpenRate, &m.ClickRate, &m.Revenue, &m.RevenuePerRecipient, &m.AverageOrderValue,
			); err != nil {
				return n, err
			}
			out = append(out, m)
			n++
		}
		return n, rows.Err()
	})
	if err != nil {
		logDegraded("flow metrics", err)
		return []FlowMetric{}
	}
	return out
}

// flowMessageMetricsSince returns weekly rows at or after since. A zero
// since returns all history.
func (s *Store) flowMessageMetricsSince(ctx context.Context, clientID string, since time.Time) ([]FlowMessageMetric, error) {
	var out []FlowMessageMetric
	err := readPages(func(limit, offset int) (int, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT client_id, flow_id, message_id, week_date,
			       recipients, delivered, opens, clicks, conversions, revenue
			FROM flow_message_metrics
			WHERE client_id = $1 AND ($2::timestamptz IS NULL OR week_date >= $2)
			ORDER BY week_date, message_id
			LIMIT $3 OFFSET $4
		`, clientID, nullableTime(since), limit, offset)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var m FlowMessageMetric
			if err := rows.Scan(
				&m.ClientID, &m.FlowID, &m.MessageID, &m.WeekDate,
				&m.Recipients, &m.Delivered, &m.Opens, &m.Clicks, &m.Conversions, &m.Revenue,
			); err != nil {
				return n, err
			}
			out = append(out, m)
			n++
		}
		return n, rows.Err()
	})
	return out, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// RecentFlowMetrics produces one rollup per flow over the last windowDays,
// combining flow metadata with summed weekly message rows. Rates are always
// recomputed from the sums. A window with no weekly rows at all falls back
// to aggregating all available history.
func (s *Store) RecentFlowMetrics(ctx context.Context, clientID string, windowDays int) []FlowRollup {
	flows := s.FlowMetrics(ctx, clientID)
	if len(flows) == 0 {
		return []FlowRollup{}
	}

	since := daysAgo(windowDays)
	weekly, err := s.flowMessageMetricsSince(ctx, clientID, since)
	if err != nil {
		logDegraded("flow message metrics", err)
		return aggregateFlows(flows, nil)
	}

	if len(weekly) == 0 {
		logger.Warn("store: no weekly flow rows in window, aggregating all history",
			"client_id", clientID, "window_days", windowDays)
		weekly, err = s.flowMessageMetricsSince(ctx, clientID, time.Time{})
		if err != nil {
			logDegraded("flow message metrics (all history)", err)
			weekly = nil
		}
	}

	return aggregateFlows(flows, weekly)
}
