// Package services – CommentService
//
// This file implements comments, replies and likes on targets. Replies are
// exactly one level deep. Every mutation runs in a transaction that also
// maintains the target's comment_count and the parent's reply_count, and
// like toggles recount the like ledger instead of trusting the cached value.
package services

import (
	"context"
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// CommentService implements the comment, reply and like use-cases.
type CommentService struct {
	DB *gorm.DB
	// MaxMessageRunes caps comment length; <= 0 disables the cap.
	MaxMessageRunes int
}

// NewCommentService constructs a CommentService with default limits.
func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{DB: db, MaxMessageRunes: 2000}
}

// LikeResult is the state of a comment's likes after a toggle.
type LikeResult struct {
	HasLiked  bool  `json:"hasLiked"`
	LikeCount int64 `json:"likeCount"`
}

func (s *CommentService) validateMessage(msg string) (string, error) {
	msg = sanitizeMessage(msg)
	if msg == "" {
		return "", ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(msg) > s.MaxMessageRunes {
		return "", ErrMessageTooLong
	}
	return msg, nil
}

// AddComment appends a top-level comment to a target.
func (s *CommentService) AddComment(ctx context.Context, userID, targetID string, kind domain.TargetKind, message string) (*domain.Comment, error) {
	msg, err := s.validateMessage(message)
	if err != nil {
		return nil, err
	}
	var c *domain.Comment
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetTarget(ctx, tx, targetID, kind); err != nil {
			if repo.IsNotFound(err) {
				return ErrTargetNotFound
			}
			return err
		}
		created, err := repo.CreateComment(ctx, tx, targetID, nil, userID, msg)
		if err != nil {
			return err
		}
		if err := repo.AdjustCommentCount(ctx, tx, targetID, 1); err != nil {
			return err
		}
		c = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.attachAuthor(ctx, c)
	return c, nil
}

// Reply appends a reply to a top-level comment. Replies to replies are
// rejected with ErrNestedReply.
func (s *CommentService) Reply(ctx context.Context, userID, commentID, message string) (*domain.Comment, error) {
	msg, err := s.validateMessage(message)
	if err != nil {
		return nil, err
	}
	var c *domain.Comment
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := repo.GetComment(ctx, tx, commentID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrCommentNotFound
			}
			return err
		}
		if parent.IsReply() {
			return ErrNestedReply
		}
		pid := parent.ID
		created, err := repo.CreateComment(ctx, tx, parent.TargetID, &pid, userID, msg)
		if err != nil {
			return err
		}
		if err := repo.RefreshReplyCount(ctx, tx, parent.ID); err != nil {
			return err
		}
		if err := repo.AdjustCommentCount(ctx, tx, parent.TargetID, 1); err != nil {
			return err
		}
		c = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.attachAuthor(ctx, c)
	return c, nil
}

// UpdateComment rewrites the message of a comment or reply. Only the author
// may update it.
func (s *CommentService) UpdateComment(ctx context.Context, userID, commentID, message string) (*domain.Comment, error) {
	msg, err := s.validateMessage(message)
	if err != nil {
		return nil, err
	}
	c, err := s.get(ctx, s.DB, commentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotCommentAuthor
	}
	if err := repo.UpdateCommentMessage(ctx, s.DB, commentID, userID, msg); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	c, err = s.get(ctx, s.DB, commentID)
	if err != nil {
		return nil, err
	}
	s.attachAuthor(ctx, c)
	return c, nil
}

// DeleteComment removes a comment or reply authored by userID, along with
// its replies and all likes on them.
func (s *CommentService) DeleteComment(ctx context.Context, userID, commentID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.get(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrNotCommentAuthor
		}
		n, err := repo.DeleteCommentCascade(ctx, tx, commentID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrCommentNotFound
			}
			return err
		}
		if c.ParentID != nil {
			if err := repo.RefreshReplyCount(ctx, tx, *c.ParentID); err != nil {
				return err
			}
		}
		return repo.AdjustCommentCount(ctx, tx, c.TargetID, -int(n))
	})
}

// ListComments returns a page of top-level comments on a target with their
// replies. When viewerID is set, HasLiked reflects that user's likes.
func (s *CommentService) ListComments(ctx context.Context, viewerID, targetID string, kind domain.TargetKind, page, limit int) ([]domain.Comment, int64, error) {
	if _, err := repo.GetTarget(ctx, s.DB, targetID, kind); err != nil {
		if repo.IsNotFound(err) {
			return nil, 0, ErrTargetNotFound
		}
		return nil, 0, err
	}
	page, limit = utils.ClampPage(page, limit, DefaultPageSize, MaxPageSize)

	total, err := repo.CountTopLevelComments(ctx, s.DB, targetID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Comment{}, 0, nil
	}
	items, err := repo.ListCommentsPage(ctx, s.DB, targetID, utils.Offset(page, limit), limit)
	if err != nil {
		return nil, 0, err
	}
	if viewerID == "" {
		return items, total, nil
	}

	ids := make([]string, 0, len(items)*2)
	for _, c := range items {
		ids = append(ids, c.ID)
		for _, r := range c.Replies {
			ids = append(ids, r.ID)
		}
	}
	liked, err := repo.LikedSet(ctx, s.DB, viewerID, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].HasLiked = liked[items[i].ID]
		for j := range items[i].Replies {
			items[i].Replies[j].HasLiked = liked[items[i].Replies[j].ID]
		}
	}
	return items, total, nil
}

// ToggleLike likes or unlikes a comment or reply for userID. The like type
// must match the row: reply ids only with LikeReply, comment ids only with
// LikeComment. The returned count is recounted from the ledger.
func (s *CommentService) ToggleLike(ctx context.Context, userID, id string, t domain.LikeTarget) (*LikeResult, error) {
	if !t.Valid() {
		return nil, ErrLikeTargetMismatch
	}
	out, err := s.toggleOnce(ctx, userID, id, t)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent like from the same user landed first.
		out, err = s.toggleOnce(ctx, userID, id, t)
	}
	if err != nil {
		return nil, err
	}
	state := "unliked"
	if out.HasLiked {
		state = "liked"
	}
	likeToggles.WithLabelValues(string(t), state).Inc()
	return out, nil
}

func (s *CommentService) toggleOnce(ctx context.Context, userID, id string, t domain.LikeTarget) (*LikeResult, error) {
	var out LikeResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockComment(ctx, tx, id); err != nil {
			if repo.IsNotFound(err) {
				return ErrCommentNotFound
			}
			return err
		}
		c, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.IsReply() != (t == domain.LikeReply) {
			return ErrLikeTargetMismatch
		}

		existing, err := repo.GetLike(ctx, tx, userID, id, t)
		switch {
		case repo.IsNotFound(err):
			if err := repo.CreateLike(ctx, tx, userID, id, t); err != nil {
				return err
			}
			out.HasLiked = true
		case err != nil:
			return err
		default:
			if err := repo.DeleteLike(ctx, tx, existing.ID); err != nil && !repo.IsNotFound(err) {
				return err
			}
			out.HasLiked = false
		}

		n, err := repo.CountLikes(ctx, tx, id, t)
		if err != nil {
			return err
		}
		out.LikeCount = n
		return repo.SetLikeCount(ctx, tx, id, n)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *CommentService) get(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	c, err := repo.GetComment(ctx, db, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return c, nil
}

// attachAuthor loads the author for response rendering; failures leave User nil.
func (s *CommentService) attachAuthor(ctx context.Context, c *domain.Comment) {
	if c == nil {
		return
	}
	if u, err := repo.GetUser(ctx, s.DB, c.UserID); err == nil {
		c.User = u
	}
}
