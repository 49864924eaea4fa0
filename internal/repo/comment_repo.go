// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for comments,
// replies, and the like ledger.
//
// Comments and replies share the comments table; a reply has a non-null
// parent_id. like_count and reply_count are caches rewritten from the ledgers
// by SetLikeCount / RefreshReplyCount.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// CreateComment inserts a comment (parentID nil) or a reply.
func CreateComment(ctx context.Context, db *gorm.DB, targetID string, parentID *string, userID, message string) (*domain.Comment, error) {
	now := time.Now().UTC()
	c := &domain.Comment{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		ParentID:  parentID,
		UserID:    userID,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Omit("User", "Target", "Replies").Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetComment fetches a comment or reply by id.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountTopLevelComments returns the number of non-reply comments on a target.
func CountTopLevelComments(ctx context.Context, db *gorm.DB, targetID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("target_id = ? AND parent_id IS NULL", targetID).
		Count(&n).Error
	return n, err
}

// ListCommentsPage returns a page of top-level comments on a target, oldest
// first, each with its author and its replies (also oldest first).
func ListCommentsPage(ctx context.Context, db *gorm.DB, targetID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Preload("User").
		Preload("Replies", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at ASC").Order("id")
		}).
		Preload("Replies.User").
		Where("target_id = ? AND parent_id IS NULL", targetID).
		Order("created_at ASC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateCommentMessage rewrites the message of a comment authored by userID.
func UpdateCommentMessage(ctx context.Context, db *gorm.DB, id, userID, message string) error {
	res := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"message": message, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCommentCascade removes a comment, its replies, and every like on any
// of them. It returns how many comment rows were deleted. Must run inside a
// transaction to be all-or-nothing.
func DeleteCommentCascade(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	tx = tx.WithContext(ctx)
	ids := []string{id}
	var replyIDs []string
	if err := tx.Model(&domain.Comment{}).Where("parent_id = ?", id).Pluck("id", &replyIDs).Error; err != nil {
		return 0, err
	}
	ids = append(ids, replyIDs...)

	if err := tx.Where("target_id IN ?", ids).Delete(&domain.Like{}).Error; err != nil {
		return 0, err
	}
	var deleted int64
	if len(replyIDs) > 0 {
		res := tx.Where("id IN ?", replyIDs).Delete(&domain.Comment{})
		if res.Error != nil {
			return 0, res.Error
		}
		deleted += res.RowsAffected
	}
	res := tx.Where("id = ?", id).Delete(&domain.Comment{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return deleted + res.RowsAffected, nil
}

// RefreshReplyCount rewrites a comment's reply_count from the replies present.
func RefreshReplyCount(ctx context.Context, tx *gorm.DB, parentID string) error {
	sub := tx.WithContext(ctx).Model(&domain.Comment{}).Select("COUNT(*)").Where("parent_id = ?", parentID)
	return tx.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ?", parentID).
		UpdateColumn("reply_count", sub).Error
}

// GetLike returns the user's like on a comment or reply, or ErrNotFound.
func GetLike(ctx context.Context, db *gorm.DB, userID, targetID string, t domain.LikeTarget) (*domain.Like, error) {
	var l domain.Like
	err := db.WithContext(ctx).
		Where("user_id = ? AND target_id = ? AND target_type = ?", userID, targetID, t).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLike inserts a like row; ErrDuplicate if present.
func CreateLike(ctx context.Context, db *gorm.DB, userID, targetID string, t domain.LikeTarget) error {
	l := &domain.Like{
		ID:         uuid.NewString(),
		UserID:     userID,
		TargetID:   targetID,
		TargetType: t,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("User").Create(l).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteLike removes a like row by id.
func DeleteLike(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Like{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountLikes counts like rows on a comment or reply.
func CountLikes(ctx context.Context, db *gorm.DB, targetID string, t domain.LikeTarget) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Like{}).
		Where("target_id = ? AND target_type = ?", targetID, t).
		Count(&n).Error
	return n, err
}

// LockComment takes a write lock on the comment row for the rest of the
// transaction, the same way LockTarget does. Returns ErrNotFound when the
// comment does not exist.
func LockComment(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLikeCount stores a freshly counted like total on the comment row.
func SetLikeCount(ctx context.Context, db *gorm.DB, commentID string, n int64) error {
	return db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ?", commentID).
		UpdateColumn("like_count", n).Error
}

// LikedSet returns the subset of commentIDs that userID has liked.
func LikedSet(ctx context.Context, db *gorm.DB, userID string, commentIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(commentIDs))
	if userID == "" || len(commentIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Like{}).
		Where("user_id = ? AND target_id IN ?", userID, commentIDs).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
