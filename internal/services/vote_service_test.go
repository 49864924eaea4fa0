package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

func TestCastVote_StateMachine(t *testing.T) {
	db := newTestDB(t)
	targets := NewTargetService(db, repoTargets{}, 0.2, time.Hour)
	s := NewVoteService(db)
	ctx := context.Background()
	tg := mustTarget(t, targets, domain.TargetIssue, "s1", "u1", "Bug", "Body")

	steps := []struct {
		name          string
		voter         string
		dir           domain.VoteDirection
		wantVote      *domain.VoteDirection
		up, down, net int
	}{
		{"first upvote", "u1", domain.Upvote, ptrDir(domain.Upvote), 1, 0, 1},
		{"other voter downvotes", "u2", domain.Downvote, ptrDir(domain.Downvote), 1, 1, 0},
		{"switch to downvote", "u1", domain.Downvote, ptrDir(domain.Downvote), 0, 2, -2},
		{"retract downvote", "u1", domain.Downvote, nil, 0, 1, -1},
		{"upvote again", "u1", domain.Upvote, ptrDir(domain.Upvote), 1, 1, 0},
		{"switch back to upvote", "u2", domain.Upvote, ptrDir(domain.Upvote), 2, 0, 2},
	}
	for _, st := range steps {
		res, err := s.CastVote(ctx, st.voter, tg.ID, domain.TargetIssue, st.dir)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if (res.VoteType == nil) != (st.wantVote == nil) || (res.VoteType != nil && *res.VoteType != *st.wantVote) {
			t.Fatalf("%s: vote=%v want %v", st.name, res.VoteType, st.wantVote)
		}
		if res.Upvotes != st.up || res.Downvotes != st.down || res.NetVotes != st.net {
			t.Fatalf("%s: counters %d/%d/%d want %d/%d/%d", st.name, res.Upvotes, res.Downvotes, res.NetVotes, st.up, st.down, st.net)
		}
		// Invariant: counters match the ledger.
		var up, down int64
		db.Model(&domain.Vote{}).Where("target_id = ? AND vote_type = ?", tg.ID, domain.Upvote).Count(&up)
		db.Model(&domain.Vote{}).Where("target_id = ? AND vote_type = ?", tg.ID, domain.Downvote).Count(&down)
		if int(up) != res.Upvotes || int(down) != res.Downvotes || res.NetVotes != res.Upvotes-res.Downvotes {
			t.Fatalf("%s: ledger %d/%d disagrees with counters %+v", st.name, up, down, res)
		}
	}

	got, err := s.GetVote(ctx, "u2", tg.ID, domain.TargetIssue)
	if err != nil || got == nil || *got != domain.Upvote {
		t.Fatalf("GetVote: %v %v", got, err)
	}
	if _, err := s.CastVote(ctx, "u1", tg.ID, domain.TargetIssue, domain.Upvote); err != nil {
		t.Fatalf("retract: %v", err)
	}
	got, err = s.GetVote(ctx, "u1", tg.ID, domain.TargetIssue)
	if err != nil || got != nil {
		t.Fatalf("GetVote after retract: %v %v", got, err)
	}
}

func ptrDir(d domain.VoteDirection) *domain.VoteDirection { return &d }

func TestCastVote_Errors(t *testing.T) {
	db := newTestDB(t)
	targets := NewTargetService(db, repoTargets{}, 0.2, time.Hour)
	s := NewVoteService(db)
	ctx := context.Background()
	fb := mustTarget(t, targets, domain.TargetFeedback, "s1", "u1", "Nice", "Body")

	if _, err := s.CastVote(ctx, "u1", fb.ID, domain.TargetFeedback, "sideways"); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("want ErrInvalidVote, got %v", err)
	}
	if _, err := s.CastVote(ctx, "u1", fb.ID, "idea", domain.Upvote); !errors.Is(err, ErrInvalidTargetKind) {
		t.Fatalf("want ErrInvalidTargetKind, got %v", err)
	}
	if _, err := s.CastVote(ctx, "u1", "missing", domain.TargetFeedback, domain.Upvote); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("want ErrTargetNotFound, got %v", err)
	}
	if _, err := s.CastVote(ctx, "u1", fb.ID, domain.TargetBug, domain.Upvote); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("kind mismatch: want ErrTargetNotFound, got %v", err)
	}
	if _, err := s.GetVote(ctx, "u1", "missing", domain.TargetFeedback); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("GetVote: want ErrTargetNotFound, got %v", err)
	}
	// Failed casts leave counters untouched.
	up, down, net, _ := repo.GetTargetCounters(ctx, db, fb.ID)
	if up != 0 || down != 0 || net != 0 {
		t.Fatalf("counters moved: %d/%d/%d", up, down, net)
	}
}

func TestCastVote_CountsTransitions(t *testing.T) {
	db := newTestDB(t)
	targets := NewTargetService(db, repoTargets{}, 0.2, time.Hour)
	s := NewVoteService(db)
	tg := mustTarget(t, targets, domain.TargetBug, "s1", "u1", "Crash", "Body")

	c := voteTransitions.WithLabelValues("bug", "switch")
	before := testutil.ToFloat64(c)
	_, _ = s.CastVote(context.Background(), "u2", tg.ID, domain.TargetBug, domain.Upvote)
	_, _ = s.CastVote(context.Background(), "u2", tg.ID, domain.TargetBug, domain.Downvote)
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("switch not counted: %v -> %v", before, got)
	}
}

func TestServiceUpvotes(t *testing.T) {
	db := newTestDB(t)
	s := NewVoteService(db)
	ctx := context.Background()

	n, err := s.UpvoteService(ctx, "u1", "s1")
	if err != nil || n != 1 {
		t.Fatalf("upvote: %d %v", n, err)
	}
	if _, err := s.UpvoteService(ctx, "u1", "s1"); !errors.Is(err, ErrAlreadyUpvoted) {
		t.Fatalf("want ErrAlreadyUpvoted, got %v", err)
	}
	if n, _ := s.UpvoteService(ctx, "u2", "s1"); n != 2 {
		t.Fatalf("second voter: %d", n)
	}
	if ok, _ := s.HasUpvotedService(ctx, "u1", "s1"); !ok {
		t.Fatalf("HasUpvotedService false after upvote")
	}
	if _, err := s.UpvoteService(ctx, "u1", "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("want ErrServiceNotFound, got %v", err)
	}

	n, err = s.RemoveServiceUpvote(ctx, "u1", "s1")
	if err != nil || n != 1 {
		t.Fatalf("remove: %d %v", n, err)
	}
	if _, err := s.RemoveServiceUpvote(ctx, "u1", "s1"); !errors.Is(err, ErrUpvoteNotFound) {
		t.Fatalf("want ErrUpvoteNotFound, got %v", err)
	}
	if ok, _ := s.HasUpvotedService(ctx, "u1", "s1"); ok {
		t.Fatalf("HasUpvotedService true after removal")
	}

	// Counter drift is clamped at zero.
	if err := db.Model(&domain.Service{}).Where("id = ?", "s1").UpdateColumn("upvotes", 0).Error; err != nil {
		t.Fatalf("force drift: %v", err)
	}
	n, err = s.RemoveServiceUpvote(ctx, "u2", "s1")
	if err != nil || n != 0 {
		t.Fatalf("clamped remove: %d %v", n, err)
	}
}
