// Package services – TargetService
//
// This file implements the TargetService, which manages feedback, issues and
// bugs opened by users against services. It validates and normalizes titles
// and descriptions, enforces author and owning-service rules, coordinates
// idempotent creation, and offers paginated listings plus similar-target
// suggestions backed by the in-memory search index.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
	"github.com/tbourn/service-flow-backend/internal/search"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// TargetRepo defines the repository contract required by TargetService for
// its non-transactional reads and writes.
type TargetRepo interface {
	// CreateTarget inserts a new target; status defaults per kind.
	CreateTarget(ctx context.Context, db *gorm.DB, kind domain.TargetKind, serviceID, openedBy, title, description string) (*domain.Target, error)

	// GetTarget fetches a target by id and kind.
	GetTarget(ctx context.Context, db *gorm.DB, id string, kind domain.TargetKind) (*domain.Target, error)

	// CountTargets returns the number of targets matching the filter.
	CountTargets(ctx context.Context, db *gorm.DB, f repo.TargetFilter) (int64, error)

	// ListTargetsPage returns a page of targets matching the filter.
	ListTargetsPage(ctx context.Context, db *gorm.DB, f repo.TargetFilter, offset, limit int) ([]domain.Target, error)

	// UpdateTargetContent rewrites title and/or description of an author's target.
	UpdateTargetContent(ctx context.Context, db *gorm.DB, id, openedBy string, title, description *string) error

	// UpdateTargetStatus changes the status of a target owned by serviceID.
	UpdateTargetStatus(ctx context.Context, db *gorm.DB, id, serviceID string, status domain.TargetStatus) error

	// ListTargetTexts returns id/title/description for a service's targets of a kind.
	ListTargetTexts(ctx context.Context, db *gorm.DB, serviceID string, kind domain.TargetKind) ([]domain.Target, error)

	// GetTargetsByIDs loads targets by id.
	GetTargetsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Target, error)
}

// Pagination defaults for target listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Limits of similar-target suggestions. Only the newest candidates are indexed.
const (
	defaultSimilarK      = 5
	maxSimilarK          = 20
	maxSimilarCandidates = 2000
)

// TargetService provides target-level operations.
type TargetService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the target repository used by this service.
	Repo TargetRepo

	// TitleMaxLen caps titles by rune length.
	TitleMaxLen int
	// DescriptionMaxLen caps descriptions by rune length.
	DescriptionMaxLen int
	// SimilarThreshold is the minimum Jaccard score for Similar results.
	SimilarThreshold float64
	// IdempotencyTTL is how long a creation Idempotency-Key is honored.
	IdempotencyTTL time.Duration
}

// NewTargetService constructs a TargetService with default limits.
func NewTargetService(db *gorm.DB, r TargetRepo, similarThreshold float64, idemTTL time.Duration) *TargetService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &TargetService{
		DB:                db,
		Repo:              r,
		TitleMaxLen:       200,
		DescriptionMaxLen: 5000,
		SimilarThreshold:  similarThreshold,
		IdempotencyTTL:    idemTTL,
	}
}

// NewTarget is the input of Create.
type NewTarget struct {
	Kind        domain.TargetKind
	ServiceID   string
	UserID      string
	Title       string
	Description string
	// IdempotencyKey, when set, makes retries of the same request return the
	// target created by the first one.
	IdempotencyKey string
}

// IdempotencyScope names the collection a creation request targets.
func IdempotencyScope(serviceID string, kind domain.TargetKind) string {
	return serviceID + ":" + string(kind)
}

// Create opens a new target. The boolean result is true when the target was
// replayed from an earlier request with the same idempotency key.
func (s *TargetService) Create(ctx context.Context, in NewTarget) (*domain.Target, bool, error) {
	if !in.Kind.Valid() {
		return nil, false, ErrInvalidTargetKind
	}
	title, desc, err := s.validateContent(in.Title, in.Description)
	if err != nil {
		return nil, false, err
	}
	if _, err := repo.GetService(ctx, s.DB, in.ServiceID); err != nil {
		if repo.IsNotFound(err) {
			return nil, false, ErrServiceNotFound
		}
		return nil, false, err
	}

	scope := IdempotencyScope(in.ServiceID, in.Kind)
	if in.IdempotencyKey != "" {
		if t, ok, err := s.replay(ctx, in.UserID, scope, in.IdempotencyKey, in.Kind); err != nil || ok {
			return t, ok, err
		}
	}

	var created *domain.Target
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.Repo.CreateTarget(ctx, tx, in.Kind, in.ServiceID, in.UserID, title, desc)
		if err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, in.UserID, scope, in.IdempotencyKey, t.ID, 201, s.IdempotencyTTL); err != nil {
				return err
			}
		}
		created = t
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) && in.IdempotencyKey != "" {
		// A concurrent request with the same key won; serve its target.
		t, ok, rerr := s.replay(ctx, in.UserID, scope, in.IdempotencyKey, in.Kind)
		if rerr != nil {
			return nil, false, rerr
		}
		if ok {
			return t, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

func (s *TargetService) replay(ctx context.Context, userID, scope, key string, kind domain.TargetKind) (*domain.Target, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, time.Now().UTC())
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	t, err := s.Repo.GetTarget(ctx, s.DB, rec.ResourceID, kind)
	if err != nil {
		if repo.IsNotFound(err) {
			// Target deleted since; treat the key as spent but fresh.
			return nil, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

// Get returns a target by id and kind.
func (s *TargetService) Get(ctx context.Context, id string, kind domain.TargetKind) (*domain.Target, error) {
	t, err := s.Repo.GetTarget(ctx, s.DB, id, kind)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	return t, nil
}

// Update rewrites title and/or description. Only the author may update.
// Nil fields are left unchanged.
func (s *TargetService) Update(ctx context.Context, userID, id string, kind domain.TargetKind, title, description *string) (*domain.Target, error) {
	t, err := s.Get(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	if t.OpenedBy != userID {
		return nil, ErrNotTargetOwner
	}
	if title == nil && description == nil {
		return t, nil
	}
	if title != nil {
		v, err := s.validateTitle(*title)
		if err != nil {
			return nil, err
		}
		title = &v
	}
	if description != nil {
		v, err := s.validateDescription(*description)
		if err != nil {
			return nil, err
		}
		description = &v
	}
	if err := s.Repo.UpdateTargetContent(ctx, s.DB, id, userID, title, description); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id, kind)
}

// Delete removes a target with its votes, comments, replies and likes in one
// transaction. Only the author may delete.
func (s *TargetService) Delete(ctx context.Context, userID, id string, kind domain.TargetKind) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTarget(ctx, tx, id, kind)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrTargetNotFound
			}
			return err
		}
		if t.OpenedBy != userID {
			return ErrNotTargetOwner
		}
		if err := repo.DeleteTargetCascade(ctx, tx, id); err != nil {
			if repo.IsNotFound(err) {
				return ErrTargetNotFound
			}
			return err
		}
		return nil
	})
}

// UpdateStatus changes the status of an issue or bug. Only the owning
// service may do so.
func (s *TargetService) UpdateStatus(ctx context.Context, serviceID, id string, kind domain.TargetKind, status domain.TargetStatus) (*domain.Target, error) {
	if !kind.HasStatus() {
		return nil, ErrStatusUnsupported
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	t, err := s.Get(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	if t.ServiceID != serviceID {
		return nil, ErrNotServiceOwner
	}
	if err := s.Repo.UpdateTargetStatus(ctx, s.DB, id, serviceID, status); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id, kind)
}

// TargetQuery is the input of List.
type TargetQuery struct {
	ServiceID string
	OpenedBy  string
	Kind      domain.TargetKind
	Status    domain.TargetStatus
	Search    string
	Sort      string
	Page      int
	Limit     int
}

// Normalize applies pagination defaults and caps.
func (q TargetQuery) Normalize() TargetQuery {
	q.Page, q.Limit = utils.ClampPage(q.Page, q.Limit, DefaultPageSize, MaxPageSize)
	switch q.Sort {
	case repo.SortTop, repo.SortNewest, repo.SortOldest:
	default:
		q.Sort = repo.SortTop
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Filter converts the query to a repository filter.
func (q TargetQuery) Filter() repo.TargetFilter {
	return repo.TargetFilter{
		ServiceID: q.ServiceID,
		OpenedBy:  q.OpenedBy,
		Kind:      q.Kind,
		Status:    q.Status,
		Search:    q.Search,
		Sort:      q.Sort,
	}
}

// List returns a page of targets and the total number of matches.
func (s *TargetService) List(ctx context.Context, q TargetQuery) ([]domain.Target, int64, TargetQuery, error) {
	q = q.Normalize()
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, 0, q, ErrInvalidTargetKind
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, q, ErrInvalidStatus
	}
	if q.ServiceID != "" {
		if _, err := repo.GetService(ctx, s.DB, q.ServiceID); err != nil {
			if repo.IsNotFound(err) {
				return nil, 0, q, ErrServiceNotFound
			}
			return nil, 0, q, err
		}
	}
	f := q.Filter()
	total, err := s.Repo.CountTargets(ctx, s.DB, f)
	if err != nil {
		return nil, 0, q, err
	}
	if total == 0 {
		return []domain.Target{}, 0, q, nil
	}
	items, err := s.Repo.ListTargetsPage(ctx, s.DB, f, utils.Offset(q.Page, q.Limit), q.Limit)
	return items, total, q, err
}

// Stats returns the match count and latest update time of a listing, used
// to derive an ETag.
func (s *TargetService) Stats(ctx context.Context, q TargetQuery) (int64, *time.Time, error) {
	return repo.TargetsStats(ctx, s.DB, q.Normalize().Filter())
}

// SimilarTarget is a Similar result.
type SimilarTarget struct {
	Target domain.Target `json:"target"`
	Score  float64       `json:"score"`
}

// Similar returns up to k targets of the service and kind whose text looks
// like query, best first, scoring at least SimilarThreshold.
func (s *TargetService) Similar(ctx context.Context, serviceID string, kind domain.TargetKind, query string, k int) ([]SimilarTarget, error) {
	if !kind.Valid() {
		return nil, ErrInvalidTargetKind
	}
	if k <= 0 {
		k = defaultSimilarK
	}
	if k > maxSimilarK {
		k = maxSimilarK
	}
	if _, err := repo.GetService(ctx, s.DB, serviceID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []SimilarTarget{}, nil
	}
	rows, err := s.Repo.ListTargetTexts(ctx, s.DB, serviceID, kind)
	if err != nil {
		return nil, fmt.Errorf("load target texts: %w", err)
	}
	docs := make([]search.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, search.Document{ID: r.ID, Text: r.Title + "\n" + r.Description})
	}
	idx := search.NewIndex(docs,
		search.WithStopwords(search.EnglishStopwords),
		search.WithMinScore(s.SimilarThreshold),
		search.WithMaxDocs(maxSimilarCandidates),
	)

	hits := idx.TopK(query, k)
	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		scores[h.ID] = h.Score
	}
	if len(ids) == 0 {
		return []SimilarTarget{}, nil
	}
	found, err := s.Repo.GetTargetsByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Target, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]SimilarTarget, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, SimilarTarget{Target: t, Score: scores[id]})
		}
	}
	return out, nil
}

func (s *TargetService) validateContent(title, description string) (string, string, error) {
	t, err := s.validateTitle(title)
	if err != nil {
		return "", "", err
	}
	d, err := s.validateDescription(description)
	if err != nil {
		return "", "", err
	}
	return t, d, nil
}

func (s *TargetService) validateTitle(title string) (string, error) {
	title = normalizeSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return "", ErrTitleTooLong
	}
	return title, nil
}

func (s *TargetService) validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", ErrDescriptionRequired
	}
	if s.DescriptionMaxLen > 0 && utf8.RuneCountInString(description) > s.DescriptionMaxLen {
		return "", ErrDescriptionTooLong
	}
	return description, nil
}
