// Package domain defines the persistence models for principals (users and
// services), targets (feedback, issues, bugs), the vote and like ledgers, and
// comments. These types are mapped with GORM and form the core data layer of
// the Service Flow backend.
package domain

import (
	"time"
)

// PrincipalKind discriminates the two authenticatable entity types.
type PrincipalKind string

const (
	KindUser    PrincipalKind = "user"
	KindService PrincipalKind = "service"
)

// Valid reports whether k is a known principal kind.
func (k PrincipalKind) Valid() bool { return k == KindUser || k == KindService }

// TargetKind discriminates feedback, issues and bugs stored in the targets table.
type TargetKind string

const (
	TargetFeedback TargetKind = "feedback"
	TargetIssue    TargetKind = "issue"
	TargetBug      TargetKind = "bug"
)

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetFeedback, TargetIssue, TargetBug:
		return true
	}
	return false
}

// HasStatus reports whether targets of this kind carry a lifecycle status.
func (k TargetKind) HasStatus() bool { return k == TargetIssue || k == TargetBug }

// TargetStatus is the lifecycle state of an issue or bug.
type TargetStatus string

const (
	StatusOpen       TargetStatus = "open"
	StatusInProgress TargetStatus = "in-progress"
	StatusResolved   TargetStatus = "resolved"
	StatusClosed     TargetStatus = "closed"
)

// AllStatuses lists every status in display order.
var AllStatuses = []TargetStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether s is one of the four lifecycle states.
func (s TargetStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// VoteDirection is the direction of a vote on a target.
type VoteDirection string

const (
	Upvote   VoteDirection = "upvote"
	Downvote VoteDirection = "downvote"
)

// Valid reports whether d is upvote or downvote.
func (d VoteDirection) Valid() bool { return d == Upvote || d == Downvote }

// LikeTarget discriminates likes on top-level comments from likes on replies.
type LikeTarget string

const (
	LikeComment LikeTarget = "comment"
	LikeReply   LikeTarget = "reply"
)

// Valid reports whether t is comment or reply.
func (t LikeTarget) Valid() bool { return t == LikeComment || t == LikeReply }

// User is an end user who opens targets, votes, and comments.
//
// Ids are application-generated UUIDs, so they never collide with Service ids.
// RefreshTokenHash holds the SHA-256 digest of the single active refresh token
// (nil after logout).
type User struct {
	ID               string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Name             string    `json:"name"      gorm:"type:varchar(100);not null"`
	Email            string    `json:"email,omitempty" gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash     string    `json:"-"         gorm:"type:varchar(100);not null"`
	RefreshTokenHash *string   `json:"-"         gorm:"type:varchar(64)"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Service is a business that registers itself and receives targets.
// Upvotes is a denormalized count of ServiceVote rows and never goes below zero.
type Service struct {
	ID               string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name             string    `json:"name"        gorm:"type:varchar(100);not null;index"`
	Email            string    `json:"email,omitempty" gorm:"type:varchar(255);not null;uniqueIndex:ux_services_email"`
	PasswordHash     string    `json:"-"           gorm:"type:varchar(100);not null"`
	RefreshTokenHash *string   `json:"-"           gorm:"type:varchar(64)"`
	Description      string    `json:"description" gorm:"type:text;not null;default:''"`
	Category         string    `json:"category"    gorm:"type:varchar(64);not null;default:''"`
	Website          string    `json:"website"     gorm:"type:varchar(255);not null;default:''"`
	LogoURL          string    `json:"logoUrl"     gorm:"type:varchar(512);not null;default:''"`
	Upvotes          int       `json:"upvotes"     gorm:"not null;default:0;check:upvotes >= 0"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Service.
func (Service) TableName() string { return "services" }

// Target is a feedback, issue, or bug opened by a User against a Service.
//
// Upvotes/Downvotes/NetVotes are denormalized from the Vote ledger and are only
// ever changed by atomic column expressions inside the vote transaction.
// Status is empty for feedback.
type Target struct {
	ID           string       `json:"id"           gorm:"type:char(36);primaryKey"`
	Kind         TargetKind   `json:"kind"         gorm:"type:varchar(16);not null;index:idx_targets_service_kind,priority:2;check:kind IN ('feedback','issue','bug')"`
	ServiceID    string       `json:"serviceId"    gorm:"type:char(36);not null;index:idx_targets_service_kind,priority:1"`
	OpenedBy     string       `json:"openedBy"     gorm:"type:char(36);not null;index:idx_targets_opened_by"`
	Title        string       `json:"title"        gorm:"type:varchar(200);not null"`
	Description  string       `json:"description"  gorm:"type:text;not null"`
	Status       TargetStatus `json:"status,omitempty" gorm:"type:varchar(16);not null;default:''"`
	Upvotes      int          `json:"upvotes"      gorm:"not null;default:0;check:upvotes >= 0"`
	Downvotes    int          `json:"downvotes"    gorm:"not null;default:0;check:downvotes >= 0"`
	NetVotes     int          `json:"netVotes"     gorm:"not null;default:0;index"`
	CommentCount int          `json:"commentCount" gorm:"not null;default:0"`
	CreatedAt    time.Time    `json:"createdAt"    gorm:"index"`
	UpdatedAt    time.Time    `json:"updatedAt"`

	// Service owns its targets; deleting the service removes them.
	Service Service `json:"-" gorm:"foreignKey:ServiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	// Author is the opening user.
	Author User `json:"-" gorm:"foreignKey:OpenedBy;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Target.
func (Target) TableName() string { return "targets" }

// Vote is one voter's vote on one target. At most one row exists per
// (voter_id, target_id, target_type), enforced by ux_votes_voter_target.
type Vote struct {
	ID         string        `json:"id"         gorm:"type:char(36);primaryKey"`
	VoterID    string        `json:"voterId"    gorm:"type:char(36);not null;uniqueIndex:ux_votes_voter_target,priority:1"`
	TargetID   string        `json:"targetId"   gorm:"type:char(36);not null;index;uniqueIndex:ux_votes_voter_target,priority:2"`
	TargetType TargetKind    `json:"targetType" gorm:"type:varchar(16);not null;uniqueIndex:ux_votes_voter_target,priority:3"`
	VoteType   VoteDirection `json:"voteType"   gorm:"type:varchar(16);not null;check:vote_type IN ('upvote','downvote')"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`

	// Votes disappear with either side of the relation.
	Target Target `json:"-" gorm:"foreignKey:TargetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Voter  User   `json:"-" gorm:"foreignKey:VoterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Vote.
func (Vote) TableName() string { return "votes" }

// ServiceVote is a presence-only upvote of a Service by a User.
type ServiceVote struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	VoterID   string    `json:"voterId"   gorm:"type:char(36);not null;uniqueIndex:ux_service_votes_voter_service,priority:1"`
	ServiceID string    `json:"serviceId" gorm:"type:char(36);not null;index;uniqueIndex:ux_service_votes_voter_service,priority:2"`
	CreatedAt time.Time `json:"createdAt"`

	Service Service `json:"-" gorm:"foreignKey:ServiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Voter   User    `json:"-" gorm:"foreignKey:VoterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ServiceVote.
func (ServiceVote) TableName() string { return "service_votes" }

// Comment is a message on a target. A comment with a ParentID is a reply;
// replies are never parents themselves (depth is exactly one).
//
// LikeCount and ReplyCount are caches, rewritten from the ledgers on every
// mutation. HasLiked is computed per caller and never stored.
type Comment struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TargetID   string    `json:"targetId"   gorm:"type:char(36);not null;index:idx_comments_target,priority:1"`
	ParentID   *string   `json:"parentId,omitempty" gorm:"type:char(36);index"`
	UserID     string    `json:"userId"     gorm:"type:char(36);not null;index"`
	Message    string    `json:"message"    gorm:"type:text;not null"`
	LikeCount  int       `json:"likeCount"  gorm:"not null;default:0"`
	ReplyCount int       `json:"replyCount" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"createdAt"  gorm:"index:idx_comments_target,priority:2"`
	UpdatedAt  time.Time `json:"updatedAt"`

	HasLiked bool `json:"hasLiked" gorm:"-"`

	User    *User     `json:"user,omitempty"    gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Target  Target    `json:"-"                 gorm:"foreignKey:TargetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Replies []Comment `json:"replies,omitempty" gorm:"foreignKey:ParentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// IsReply reports whether the comment is a reply to another comment.
func (c *Comment) IsReply() bool { return c.ParentID != nil }

// Like is one user's like on one comment or reply, unique per
// (user_id, target_id, target_type). TargetID carries no FK; likes are
// removed by the comment and target cascades in repo.
type Like struct {
	ID         string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string     `json:"userId"     gorm:"type:char(36);not null;uniqueIndex:ux_likes_user_target,priority:1"`
	TargetID   string     `json:"targetId"   gorm:"type:char(36);not null;index;uniqueIndex:ux_likes_user_target,priority:2"`
	TargetType LikeTarget `json:"targetType" gorm:"type:varchar(16);not null;uniqueIndex:ux_likes_user_target,priority:3;check:target_type IN ('comment','reply')"`
	CreatedAt  time.Time  `json:"createdAt"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Like.
func (Like) TableName() string { return "likes" }

// AllModels lists every persisted model in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Service{},
		&Target{},
		&Vote{},
		&ServiceVote{},
		&Comment{},
		&Like{},
		&Idempotency{},
	}
}
