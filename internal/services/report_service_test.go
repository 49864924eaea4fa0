package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

func TestSummary(t *testing.T) {
	db := newTestDB(t)
	targets := NewTargetService(db, repoTargets{}, 0.2, time.Hour)
	votes := NewVoteService(db)
	comments := NewCommentService(db)
	r := NewReportService(db)
	ctx := context.Background()

	fb := mustTarget(t, targets, domain.TargetFeedback, "s1", "u1", "Nice", "x")
	is := mustTarget(t, targets, domain.TargetIssue, "s1", "u1", "Slow", "x")
	mustTarget(t, targets, domain.TargetBug, "s1", "u2", "Crash", "x")
	mustTarget(t, targets, domain.TargetBug, "s1", "u2", "Crash 2", "x")
	mustTarget(t, targets, domain.TargetIssue, "s2", "u1", "Elsewhere", "x")

	if _, err := targets.UpdateStatus(ctx, "s1", is.ID, domain.TargetIssue, domain.StatusResolved); err != nil {
		t.Fatalf("status: %v", err)
	}
	_, _ = votes.CastVote(ctx, "u1", fb.ID, domain.TargetFeedback, domain.Upvote)
	_, _ = votes.CastVote(ctx, "u2", fb.ID, domain.TargetFeedback, domain.Upvote)
	_, _ = votes.CastVote(ctx, "u2", is.ID, domain.TargetIssue, domain.Downvote)
	_, _ = votes.UpvoteService(ctx, "u1", "s1")
	c, _ := comments.AddComment(ctx, "u2", fb.ID, domain.TargetFeedback, "hi")
	_, _ = comments.Reply(ctx, "u1", c.ID, "hey")

	sum, err := r.Summary(ctx, "s1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Feedbacks != 1 || sum.Issues != 1 || sum.Bugs != 2 {
		t.Fatalf("kinds: %+v", sum)
	}
	if sum.Status[domain.StatusOpen] != 2 || sum.Status[domain.StatusResolved] != 1 || sum.Status[domain.StatusClosed] != 0 {
		t.Fatalf("status: %+v", sum.Status)
	}
	if len(sum.Status) != len(domain.AllStatuses) {
		t.Fatalf("status map must list every status: %+v", sum.Status)
	}
	if sum.Upvotes != 2 || sum.Downvotes != 1 || sum.Comments != 2 || sum.ServiceUpvotes != 1 {
		t.Fatalf("totals: %+v", sum)
	}

	if _, err := r.Summary(ctx, "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("want ErrServiceNotFound, got %v", err)
	}
}

func TestActivity(t *testing.T) {
	db := newTestDB(t)
	r := NewReportService(db)
	// Wednesday.
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	for i, at := range []time.Time{
		now.Add(-1 * time.Hour), // today
		now.Add(-2 * time.Hour), // today
		now.AddDate(0, 0, -2),   // Mon 10th
		now.AddDate(0, 0, -9),   // Mon 3rd
		now.AddDate(0, 0, -40),  // outside window
	} {
		tg := domain.Target{
			ID: "t" + string(rune('a'+i)), Kind: domain.TargetFeedback, ServiceID: "s1", OpenedBy: "u1",
			Title: "t", Description: "d", CreatedAt: at, UpdatedAt: at,
		}
		if err := db.Omit("Service", "Author").Create(&tg).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	days, err := r.Activity(ctx, "s1", 7, "")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(days) != 7 || days[0].Date != "2025-03-06" || days[6].Date != "2025-03-12" {
		t.Fatalf("daily window: %+v", days)
	}
	if days[6].Count != 2 || days[4].Count != 1 || days[0].Count != 0 {
		t.Fatalf("daily counts: %+v", days)
	}

	weeks, err := r.Activity(ctx, "s1", 14, BucketWeek)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	// Window starts Thu 27 Feb, aligned back to Mon 24 Feb.
	if len(weeks) != 3 || weeks[0].Date != "2025-02-24" || weeks[2].Date != "2025-03-10" {
		t.Fatalf("weekly window: %+v", weeks)
	}
	if weeks[0].Count != 0 || weeks[1].Count != 1 || weeks[2].Count != 3 {
		t.Fatalf("weekly counts: %+v", weeks)
	}

	if _, err := r.Activity(ctx, "s1", 0, BucketDay); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange, got %v", err)
	}
	if _, err := r.Activity(ctx, "s1", 7, "month"); !errors.Is(err, ErrInvalidBucket) {
		t.Fatalf("want ErrInvalidBucket, got %v", err)
	}
	if _, err := r.Activity(ctx, "missing", 7, BucketDay); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("want ErrServiceNotFound, got %v", err)
	}
}
