package service

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/psds-microservice/support-ticket-service/internal/model"
)

type Stats struct {
	TotalTickets     int64   `json:"total_tickets"`
	OpenTickets      int64   `json:"open_tickets"`
	AvgTicketsPerDay float64 `json:"avg_tickets_per_day"`
	// Breakdowns hold only values that occur at least once.
	PriorityBreakdown map[string]int64 `json:"priority_breakdown"`
	CategoryBreakdown map[string]int64 `json:"category_breakdown"`
}

type valueCount struct {
	Value string
	Count int64
}

// Stats aggregates in the database; rows are never loaded into memory.
//
// avg_tickets_per_day divides by the number of distinct calendar dates
// (UTC) that have at least one ticket, not by the days elapsed since the
// first ticket.
func (s *TicketService) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	out := &Stats{
		PriorityBreakdown: map[string]int64{},
		CategoryBreakdown: map[string]int64{},
	}

	if err := db.Model(&model.Ticket{}).Count(&out.TotalTickets).Error; err != nil {
		return nil, errors.Wrap(err, "count tickets")
	}
	if err := db.Model(&model.Ticket{}).Where("status = ?", model.TicketStatusOpen).Count(&out.OpenTickets).Error; err != nil {
		return nil, errors.Wrap(err, "count open tickets")
	}

	var days int64
	if err := db.Model(&model.Ticket{}).Select("COUNT(DISTINCT " + utcDate(s.db.Dialector.Name(), "created_at") + ")").Scan(&days).Error; err != nil {
		return nil, errors.Wrap(err, "count ticket days")
	}
	if days > 0 {
		out.AvgTicketsPerDay = math.Round(float64(out.TotalTickets)/float64(days)*10) / 10
	}

	if err := s.breakdown(ctx, "priority", out.PriorityBreakdown); err != nil {
		return nil, err
	}
	if err := s.breakdown(ctx, "category", out.CategoryBreakdown); err != nil {
		return nil, err
	}
	return out, nil
}

// utcDate returns the SQL expression for the UTC calendar date of column.
// Postgres DATE() on TIMESTAMPTZ uses the session TimeZone; SQLite converts
// values with an offset to UTC on its own.
func utcDate(dialect, column string) string {
	if dialect == "postgres" {
		return "DATE(" + column + " AT TIME ZONE 'UTC')"
	}
	return "DATE(" + column + ")"
}

// column приходит только из кода, не из запроса.
func (s *TicketService) breakdown(ctx context.Context, column string, into map[string]int64) error {
	var rows []valueCount
	err := s.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Select(column + " AS value, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return errors.Wrapf(err, "%s breakdown", column)
	}
	for _, r := range rows {
		into[r.Value] = r.Count
	}
	return nil
}
