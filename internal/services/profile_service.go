// Package services – ProfileService
//
// ProfileService exposes the public service directory (search, category
// filter, pagination) and lets a service edit its own profile. Logo images
// are not uploaded here; a profile carries a logo URL hosted elsewhere.
package services

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// ProfileService implements service directory and profile operations.
type ProfileService struct {
	DB *gorm.DB
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB) *ProfileService { return &ProfileService{DB: db} }

// ProfileUpdate holds the optional fields of a profile edit.
type ProfileUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Website     *string `json:"website"`
	LogoURL     *string `json:"logoUrl"`
}

// Column sizes of the services table.
const (
	maxCategoryRunes    = 64
	maxWebsiteRunes     = 255
	maxLogoURLRunes     = 512
	maxDescriptionRunes = 5000
)

// Get returns a service by id.
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.Service, error) {
	svc, err := repo.GetService(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return svc, nil
}

// UpdateProfile applies u to the service. Only the service itself may edit
// its profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, requesterID, serviceID string, u ProfileUpdate) (*domain.Service, error) {
	if requesterID != serviceID {
		return nil, ErrNotServiceOwner
	}
	p, err := normalizeProfile(u)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateServiceProfile(ctx, s.DB, serviceID, p); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return s.Get(ctx, serviceID)
}

// List returns a page of services, most upvoted first.
func (s *ProfileService) List(ctx context.Context, search, category string, page, limit int) ([]domain.Service, int64, error) {
	page, limit = utils.ClampPage(page, limit, DefaultPageSize, MaxPageSize)
	f := repo.ServiceFilter{Search: strings.TrimSpace(search), Category: normalizeCategory(category)}
	total, err := repo.CountServices(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Service{}, 0, nil
	}
	items, err := repo.ListServicesPage(ctx, s.DB, f, utils.Offset(page, limit), limit)
	return items, total, err
}

func normalizeProfile(u ProfileUpdate) (repo.ServiceProfile, error) {
	var p repo.ServiceProfile
	if u.Name != nil {
		v := normalizeSpace(*u.Name)
		if v == "" {
			return p, ErrNameRequired
		}
		if utf8.RuneCountInString(v) > maxNameRunes {
			return p, ErrFieldTooLong
		}
		p.Name = &v
	}
	if u.Description != nil {
		v := strings.TrimSpace(*u.Description)
		if utf8.RuneCountInString(v) > maxDescriptionRunes {
			return p, ErrFieldTooLong
		}
		p.Description = &v
	}
	if u.Category != nil {
		v := normalizeCategory(*u.Category)
		if utf8.RuneCountInString(v) > maxCategoryRunes {
			return p, ErrFieldTooLong
		}
		p.Category = &v
	}
	if u.Website != nil {
		v, err := normalizeURL(*u.Website, maxWebsiteRunes)
		if err != nil {
			return p, err
		}
		p.Website = &v
	}
	if u.LogoURL != nil {
		v, err := normalizeURL(*u.LogoURL, maxLogoURLRunes)
		if err != nil {
			return p, err
		}
		p.LogoURL = &v
	}
	return p, nil
}

// normalizeCategory folds a category to lower case with single spaces.
func normalizeCategory(c string) string {
	return cases.Lower(language.Und).String(normalizeSpace(c))
}

// normalizeURL accepts "" (clears the field) or an absolute http(s) URL.
func normalizeURL(raw string, maxRunes int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if utf8.RuneCountInString(raw) > maxRunes {
		return "", ErrFieldTooLong
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}
