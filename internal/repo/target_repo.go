// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for targets
// (feedback, issues and bugs), which share a single table discriminated by
// kind.
//
// Counter columns (upvotes, downvotes, net_votes, comment_count) are only ever
// changed through AdjustTargetVotes / AdjustCommentCount, which issue atomic
// "col + n" updates; no function here reads a counter and writes it back.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// Sort orders accepted by target listings.
const (
	SortTop    = "top"
	SortNewest = "newest"
	SortOldest = "oldest"
)

// TargetFilter narrows a target listing. Empty fields are ignored.
type TargetFilter struct {
	ServiceID string
	OpenedBy  string
	Kind      domain.TargetKind
	Status    domain.TargetStatus
	Search    string
	Sort      string
}

// CreateTarget inserts a new target. Status is forced to open for kinds that
// carry one and left empty for feedback.
func CreateTarget(ctx context.Context, db *gorm.DB, kind domain.TargetKind, serviceID, openedBy, title, description string) (*domain.Target, error) {
	now := time.Now().UTC()
	t := &domain.Target{
		ID:          uuid.NewString(),
		Kind:        kind,
		ServiceID:   serviceID,
		OpenedBy:    openedBy,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if kind.HasStatus() {
		t.Status = domain.StatusOpen
	}
	if err := db.WithContext(ctx).Omit("Service", "Author").Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTarget fetches a target by id and kind. A target of another kind is
// reported as ErrNotFound.
func GetTarget(ctx context.Context, db *gorm.DB, id string, kind domain.TargetKind) (*domain.Target, error) {
	var t domain.Target
	err := db.WithContext(ctx).
		Where("id = ? AND kind = ?", id, kind).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func targetsQuery(ctx context.Context, db *gorm.DB, f TargetFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Target{})
	if f.ServiceID != "" {
		q = q.Where("service_id = ?", f.ServiceID)
	}
	if f.OpenedBy != "" {
		q = q.Where("opened_by = ?", f.OpenedBy)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pat := likePattern(s)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pat, pat)
	}
	return q
}

// CountTargets returns the number of targets matching f.
func CountTargets(ctx context.Context, db *gorm.DB, f TargetFilter) (int64, error) {
	var total int64
	err := targetsQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListTargetsPage returns a page of targets matching f in the requested order.
// Unknown sort values fall back to SortTop.
func ListTargetsPage(ctx context.Context, db *gorm.DB, f TargetFilter, offset, limit int) ([]domain.Target, error) {
	q := targetsQuery(ctx, db, f)
	switch f.Sort {
	case SortNewest:
		q = q.Order("created_at DESC")
	case SortOldest:
		q = q.Order("created_at ASC")
	default:
		q = q.Order("net_votes DESC").Order("created_at DESC")
	}
	var out []domain.Target
	err := q.Order("id").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// ListTargetTexts returns id, title and description of every target of a
// service and kind, for building a similarity index.
func ListTargetTexts(ctx context.Context, db *gorm.DB, serviceID string, kind domain.TargetKind) ([]domain.Target, error) {
	var out []domain.Target
	err := db.WithContext(ctx).
		Select("id", "title", "description").
		Where("service_id = ? AND kind = ?", serviceID, kind).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// GetTargetsByIDs loads targets by id; missing ids are skipped.
func GetTargetsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Target, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Target
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// UpdateTargetContent sets title and/or description (nil leaves a field as is).
// Ownership is enforced by the WHERE clause; no match yields ErrNotFound.
func UpdateTargetContent(ctx context.Context, db *gorm.DB, id, openedBy string, title, description *string) error {
	cols := map[string]any{"updated_at": time.Now().UTC()}
	if title != nil {
		cols["title"] = *title
	}
	if description != nil {
		cols["description"] = *description
	}
	res := db.WithContext(ctx).
		Model(&domain.Target{}).
		Where("id = ? AND opened_by = ?", id, openedBy).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTargetStatus sets the status of a target owned by serviceID.
func UpdateTargetStatus(ctx context.Context, db *gorm.DB, id, serviceID string, status domain.TargetStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Target{}).
		Where("id = ? AND service_id = ?", id, serviceID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LockTarget takes a write lock on the target row for the rest of the
// transaction by issuing a no-op update. On Postgres this holds the row lock;
// on SQLite it acquires the database write lock. Returns ErrNotFound when the
// target does not exist.
func LockTarget(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).
		Model(&domain.Target{}).
		Where("id = ?", id).
		UpdateColumn("upvotes", gorm.Expr("upvotes"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustTargetVotes atomically adds the given deltas to the vote counters.
func AdjustTargetVotes(ctx context.Context, tx *gorm.DB, id string, dUp, dDown, dNet int) error {
	res := tx.WithContext(ctx).
		Model(&domain.Target{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"upvotes":    gorm.Expr("upvotes + ?", dUp),
			"downvotes":  gorm.Expr("downvotes + ?", dDown),
			"net_votes":  gorm.Expr("net_votes + ?", dNet),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustCommentCount atomically adds delta to a target's comment_count.
func AdjustCommentCount(ctx context.Context, tx *gorm.DB, id string, delta int) error {
	return tx.WithContext(ctx).
		Model(&domain.Target{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"comment_count": gorm.Expr("comment_count + ?", delta),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// GetTargetCounters reads the current vote counters of a target.
func GetTargetCounters(ctx context.Context, db *gorm.DB, id string) (up, down, net int, err error) {
	var row struct {
		Upvotes   int
		Downvotes int
		NetVotes  int
	}
	res := db.WithContext(ctx).
		Model(&domain.Target{}).
		Select("upvotes", "downvotes", "net_votes").
		Where("id = ?", id).
		Take(&row)
	if res.Error != nil {
		return 0, 0, 0, res.Error
	}
	return row.Upvotes, row.Downvotes, row.NetVotes, nil
}

// DeleteTargetCascade removes a target and everything that depends on it:
// likes on its comments and replies, the comments themselves, its votes, and
// finally the target row. Must run inside a transaction to be all-or-nothing.
func DeleteTargetCascade(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	commentIDs := tx.Model(&domain.Comment{}).Select("id").Where("target_id = ?", id)
	if err := tx.Where("target_id IN (?)", commentIDs).Delete(&domain.Like{}).Error; err != nil {
		return err
	}
	// Replies first so parent rows are never orphaned mid-delete.
	if err := tx.Where("target_id = ? AND parent_id IS NOT NULL", id).Delete(&domain.Comment{}).Error; err != nil {
		return err
	}
	if err := tx.Where("target_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
		return err
	}
	if err := tx.Where("target_id = ?", id).Delete(&domain.Vote{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Target{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
