// Package services – ReportService
//
// ReportService aggregates a service's targets into a dashboard summary and
// a zero-filled activity series.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

// Activity buckets.
const (
	BucketDay  = "day"
	BucketWeek = "week"
)

// ReportService computes per-service aggregates.
type ReportService struct {
	DB  *gorm.DB
	now func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{DB: db, now: time.Now}
}

// ServiceSummary is the aggregate view of one service.
type ServiceSummary struct {
	ServiceID      string                        `json:"serviceId"`
	Feedbacks      int64                         `json:"feedbacks"`
	Issues         int64                         `json:"issues"`
	Bugs           int64                         `json:"bugs"`
	Status         map[domain.TargetStatus]int64 `json:"status"`
	Upvotes        int64                         `json:"upvotes"`
	Downvotes      int64                         `json:"downvotes"`
	Comments       int64                         `json:"comments"`
	ServiceUpvotes int                           `json:"serviceUpvotes"`
}

// ActivityPoint is the number of targets created in one bucket starting at Date.
type ActivityPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Summary returns target counts by kind and status, vote and comment totals,
// and the service's own upvotes.
func (s *ReportService) Summary(ctx context.Context, serviceID string) (*ServiceSummary, error) {
	svc, err := repo.GetService(ctx, s.DB, serviceID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	out := &ServiceSummary{
		ServiceID:      svc.ID,
		Status:         make(map[domain.TargetStatus]int64, len(domain.AllStatuses)),
		ServiceUpvotes: svc.Upvotes,
	}
	for _, st := range domain.AllStatuses {
		out.Status[st] = 0
	}

	kinds, err := repo.CountTargetsByKind(ctx, s.DB, serviceID)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		switch k.Kind {
		case domain.TargetFeedback:
			out.Feedbacks = k.Total
		case domain.TargetIssue:
			out.Issues = k.Total
		case domain.TargetBug:
			out.Bugs = k.Total
		}
	}

	statuses, err := repo.CountTargetsByStatus(ctx, s.DB, serviceID)
	if err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if st.Status.Valid() {
			out.Status[st.Status] = st.Total
		}
	}

	totals, err := repo.SumTargetCounters(ctx, s.DB, serviceID)
	if err != nil {
		return nil, err
	}
	out.Upvotes, out.Downvotes, out.Comments = totals.Upvotes, totals.Downvotes, totals.Comments
	return out, nil
}

// Activity returns how many targets were created per bucket over the last
// days days, oldest first, with empty buckets reported as zero. Buckets are
// UTC calendar days, or ISO weeks starting Monday.
func (s *ReportService) Activity(ctx context.Context, serviceID string, days int, bucket string) ([]ActivityPoint, error) {
	if days < 1 || days > 365 {
		return nil, ErrInvalidRange
	}
	if bucket == "" {
		bucket = BucketDay
	}
	if bucket != BucketDay && bucket != BucketWeek {
		return nil, ErrInvalidBucket
	}
	if _, err := repo.GetService(ctx, s.DB, serviceID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	today := truncateDay(s.now().UTC())
	start := today.AddDate(0, 0, -(days - 1))
	step := 1
	if bucket == BucketWeek {
		start = startOfWeek(start)
		step = 7
	}

	created, err := repo.TargetCreatedSince(ctx, s.DB, serviceID, start)
	if err != nil {
		return nil, err
	}

	n := int(today.Sub(start).Hours()/24)/step + 1
	points := make([]ActivityPoint, n)
	for i := range points {
		points[i].Date = start.AddDate(0, 0, i*step).Format("2006-01-02")
	}
	for _, ts := range created {
		i := int(truncateDay(ts.UTC()).Sub(start).Hours()/24) / step
		if i >= 0 && i < n {
			points[i].Count++
		}
	}
	return points, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns the Monday on or before t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return truncateDay(t).AddDate(0, 0, -offset)
}
