// Package services – VoteService
//
// This file implements the two vote ledgers:
//
//   - Target votes: a per-(voter, target, kind) three-state machine
//     (none → direction, same direction → retract, other direction → switch).
//     Each call runs in one transaction that first write-locks the target row,
//     then reads and mutates the vote row, then applies counter deltas with
//     atomic column expressions. A concurrent first vote that loses the race on
//     the unique index is retried once and observes the winner's row.
//   - Service upvotes: presence-only. Adding twice is ErrAlreadyUpvoted and
//     removing a missing upvote is ErrUpvoteNotFound. The ledger row and the
//     counter change commit together or not at all.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

// VoteService implements target voting and service upvotes.
type VoteService struct {
	DB *gorm.DB
}

// NewVoteService constructs a VoteService.
func NewVoteService(db *gorm.DB) *VoteService { return &VoteService{DB: db} }

// VoteResult is the outcome of CastVote: the caller's vote after the call
// (nil when retracted) and the target's counters.
type VoteResult struct {
	VoteType  *domain.VoteDirection `json:"voteType"`
	Upvotes   int                   `json:"upvotes"`
	Downvotes int                   `json:"downvotes"`
	NetVotes  int                   `json:"netVotes"`
}

// voteDelta returns the counter deltas for adding (sign=1) or removing
// (sign=-1) one vote in direction d.
func voteDelta(d domain.VoteDirection, sign int) (up, down, net int) {
	if d == domain.Upvote {
		return sign, 0, sign
	}
	return 0, sign, -sign
}

// CastVote applies direction to the voter's vote on a target.
func (s *VoteService) CastVote(ctx context.Context, voterID, targetID string, kind domain.TargetKind, dir domain.VoteDirection) (*VoteResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidTargetKind
	}
	if !dir.Valid() {
		return nil, ErrInvalidVote
	}

	res, transition, err := s.castOnce(ctx, voterID, targetID, kind, dir)
	if errors.Is(err, repo.ErrDuplicate) {
		res, transition, err = s.castOnce(ctx, voterID, targetID, kind, dir)
	}
	if err != nil {
		return nil, err
	}
	voteTransitions.WithLabelValues(string(kind), transition).Inc()
	return res, nil
}

func (s *VoteService) castOnce(ctx context.Context, voterID, targetID string, kind domain.TargetKind, dir domain.VoteDirection) (*VoteResult, string, error) {
	var (
		out        VoteResult
		transition string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockTarget(ctx, tx, targetID); err != nil {
			if repo.IsNotFound(err) {
				return ErrTargetNotFound
			}
			return err
		}
		if _, err := repo.GetTarget(ctx, tx, targetID, kind); err != nil {
			if repo.IsNotFound(err) {
				return ErrTargetNotFound
			}
			return err
		}

		var dUp, dDown, dNet int
		existing, err := repo.GetVote(ctx, tx, voterID, targetID, kind)
		switch {
		case repo.IsNotFound(err):
			if _, err := repo.CreateVote(ctx, tx, voterID, targetID, kind, dir); err != nil {
				return err
			}
			dUp, dDown, dNet = voteDelta(dir, 1)
			d := dir
			out.VoteType = &d
			transition = "cast"
		case err != nil:
			return err
		case existing.VoteType == dir:
			if err := repo.DeleteVote(ctx, tx, existing.ID); err != nil {
				return err
			}
			dUp, dDown, dNet = voteDelta(dir, -1)
			transition = "retract"
		default:
			if err := repo.UpdateVoteDirection(ctx, tx, existing.ID, dir); err != nil {
				return err
			}
			u1, d1, n1 := voteDelta(existing.VoteType, -1)
			u2, d2, n2 := voteDelta(dir, 1)
			dUp, dDown, dNet = u1+u2, d1+d2, n1+n2
			d := dir
			out.VoteType = &d
			transition = "switch"
		}

		if err := repo.AdjustTargetVotes(ctx, tx, targetID, dUp, dDown, dNet); err != nil {
			return err
		}
		up, down, net, err := repo.GetTargetCounters(ctx, tx, targetID)
		if err != nil {
			return err
		}
		out.Upvotes, out.Downvotes, out.NetVotes = up, down, net
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &out, transition, nil
}

// GetVote returns the voter's current direction on a target, or nil.
func (s *VoteService) GetVote(ctx context.Context, voterID, targetID string, kind domain.TargetKind) (*domain.VoteDirection, error) {
	if _, err := repo.GetTarget(ctx, s.DB, targetID, kind); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	v, err := repo.GetVote(ctx, s.DB, voterID, targetID, kind)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	d := v.VoteType
	return &d, nil
}

// UpvoteService records the voter's upvote on a service and returns the
// service's new upvote count.
func (s *VoteService) UpvoteService(ctx context.Context, voterID, serviceID string) (int, error) {
	var upvotes int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetService(ctx, tx, serviceID); err != nil {
			if repo.IsNotFound(err) {
				return ErrServiceNotFound
			}
			return err
		}
		if err := repo.CreateServiceVote(ctx, tx, voterID, serviceID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyUpvoted
			}
			return err
		}
		if err := repo.IncrementServiceUpvotes(ctx, tx, serviceID); err != nil {
			if repo.IsNotFound(err) {
				return ErrServiceNotFound
			}
			return err
		}
		svc, err := repo.GetService(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		upvotes = svc.Upvotes
		return nil
	})
	serviceVotes.WithLabelValues("add_" + outcome(err)).Inc()
	return upvotes, err
}

// RemoveServiceUpvote deletes the voter's upvote on a service and returns
// the service's new upvote count, which never drops below zero.
func (s *VoteService) RemoveServiceUpvote(ctx context.Context, voterID, serviceID string) (int, error) {
	var upvotes int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetService(ctx, tx, serviceID); err != nil {
			if repo.IsNotFound(err) {
				return ErrServiceNotFound
			}
			return err
		}
		if err := repo.DeleteServiceVote(ctx, tx, voterID, serviceID); err != nil {
			if repo.IsNotFound(err) {
				return ErrUpvoteNotFound
			}
			return err
		}
		if err := repo.DecrementServiceUpvotes(ctx, tx, serviceID); err != nil {
			return err
		}
		svc, err := repo.GetService(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		upvotes = svc.Upvotes
		return nil
	})
	serviceVotes.WithLabelValues("remove_" + outcome(err)).Inc()
	return upvotes, err
}

// HasUpvotedService reports whether the voter currently upvotes the service.
func (s *VoteService) HasUpvotedService(ctx context.Context, voterID, serviceID string) (bool, error) {
	return repo.HasServiceVote(ctx, s.DB, voterID, serviceID)
}
