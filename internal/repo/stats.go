// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and per-service reporting.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// TargetsStats returns aggregate metadata for the targets matching f: the
// total number of rows and the maximum UpdatedAt among them. Votes and comment
// counts bump updated_at, so the pair changes whenever a listing would.
//
// When nothing matches, count is 0 and maxUpdatedAt is nil.
func TargetsStats(ctx context.Context, db *gorm.DB, f TargetFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = targetsQuery(ctx, db, f).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = targetsQuery(ctx, db, f).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// KindCount is one row of CountTargetsByKind.
type KindCount struct {
	Kind  domain.TargetKind
	Total int64
}

// CountTargetsByKind groups a service's targets by kind.
func CountTargetsByKind(ctx context.Context, db *gorm.DB, serviceID string) ([]KindCount, error) {
	var out []KindCount
	err := db.WithContext(ctx).
		Model(&domain.Target{}).
		Select("kind, COUNT(*) AS total").
		Where("service_id = ?", serviceID).
		Group("kind").
		Scan(&out).Error
	return out, err
}

// StatusCount is one row of CountTargetsByStatus.
type StatusCount struct {
	Status domain.TargetStatus
	Total  int64
}

// CountTargetsByStatus groups a service's issues and bugs by status.
func CountTargetsByStatus(ctx context.Context, db *gorm.DB, serviceID string) ([]StatusCount, error) {
	var out []StatusCount
	err := db.WithContext(ctx).
		Model(&domain.Target{}).
		Select("status, COUNT(*) AS total").
		Where("service_id = ? AND kind IN ?", serviceID, []domain.TargetKind{domain.TargetIssue, domain.TargetBug}).
		Group("status").
		Scan(&out).Error
	return out, err
}

// VoteTotals is the sum of target vote counters for a service.
type VoteTotals struct {
	Upvotes   int64
	Downvotes int64
	Comments  int64
}

// SumTargetCounters sums upvotes, downvotes and comment counts over a
// service's targets.
func SumTargetCounters(ctx context.Context, db *gorm.DB, serviceID string) (VoteTotals, error) {
	var out VoteTotals
	err := db.WithContext(ctx).
		Model(&domain.Target{}).
		Select("COALESCE(SUM(upvotes), 0) AS upvotes, COALESCE(SUM(downvotes), 0) AS downvotes, COALESCE(SUM(comment_count), 0) AS comments").
		Where("service_id = ?", serviceID).
		Scan(&out).Error
	return out, err
}

// TargetCreatedSince returns the creation times of a service's targets created
// at or after since, oldest first. Bucketing happens in the caller so the
// query stays portable across SQLite and Postgres date functions.
func TargetCreatedSince(ctx context.Context, db *gorm.DB, serviceID string, since time.Time) ([]time.Time, error) {
	var rows []struct {
		CreatedAt time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Target{}).
		Select("created_at").
		Where("service_id = ? AND created_at >= ?", serviceID, since).
		Order("created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.CreatedAt)
	}
	return out, nil
}
