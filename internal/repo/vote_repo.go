// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two vote
// ledgers: directional target votes and presence-only service upvotes.
//
// Uniqueness of (voter, target, target_type) and (voter, service) is enforced
// by unique indexes; inserts colliding with them return ErrDuplicate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// GetVote returns the voter's vote on a target, or ErrNotFound.
func GetVote(ctx context.Context, db *gorm.DB, voterID, targetID string, kind domain.TargetKind) (*domain.Vote, error) {
	var v domain.Vote
	err := db.WithContext(ctx).
		Where("voter_id = ? AND target_id = ? AND target_type = ?", voterID, targetID, kind).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVote inserts a vote row.
func CreateVote(ctx context.Context, db *gorm.DB, voterID, targetID string, kind domain.TargetKind, dir domain.VoteDirection) (*domain.Vote, error) {
	now := time.Now().UTC()
	v := &domain.Vote{
		ID:         uuid.NewString(),
		VoterID:    voterID,
		TargetID:   targetID,
		TargetType: kind,
		VoteType:   dir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Omit("Target", "Voter").Create(v).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return v, nil
}

// UpdateVoteDirection switches an existing vote in place.
func UpdateVoteDirection(ctx context.Context, db *gorm.DB, id string, dir domain.VoteDirection) error {
	res := db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("id = ?", id).
		Updates(map[string]any{"vote_type": dir, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVote removes a vote row by id.
func DeleteVote(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Vote{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasServiceVote reports whether the voter currently upvotes the service.
func HasServiceVote(ctx context.Context, db *gorm.DB, voterID, serviceID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ServiceVote{}).
		Where("voter_id = ? AND service_id = ?", voterID, serviceID).
		Count(&n).Error
	return n > 0, err
}

// CreateServiceVote inserts a service upvote; ErrDuplicate if present.
func CreateServiceVote(ctx context.Context, db *gorm.DB, voterID, serviceID string) error {
	sv := &domain.ServiceVote{
		ID:        uuid.NewString(),
		VoterID:   voterID,
		ServiceID: serviceID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Service", "Voter").Create(sv).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteServiceVote removes a service upvote; ErrNotFound if absent.
func DeleteServiceVote(ctx context.Context, db *gorm.DB, voterID, serviceID string) error {
	res := db.WithContext(ctx).
		Where("voter_id = ? AND service_id = ?", voterID, serviceID).
		Delete(&domain.ServiceVote{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementServiceUpvotes atomically adds one to a service's upvotes.
func IncrementServiceUpvotes(ctx context.Context, db *gorm.DB, serviceID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Service{}).
		Where("id = ?", serviceID).
		UpdateColumn("upvotes", gorm.Expr("upvotes + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementServiceUpvotes atomically subtracts one, never going below zero.
func DecrementServiceUpvotes(ctx context.Context, db *gorm.DB, serviceID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Service{}).
		Where("id = ?", serviceID).
		UpdateColumn("upvotes", gorm.Expr("CASE WHEN upvotes > 0 THEN upvotes - 1 ELSE 0 END"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
