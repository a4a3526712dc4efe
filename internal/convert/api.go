// Package convert maps domain models to wire messages and back.
package convert

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/api"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func idOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// ParseID parses a wire uuid, naming field in the error.
func ParseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

// --- users ---

func ToAPIUser(u model.User) api.User {
	return api.User{
		ID:          u.ID.String(),
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		WebsiteURL:  u.WebsiteURL,
		Role:        string(u.Role),
		Verified:    u.Verified,
		CreatedAt:   u.CreatedAt.UTC(),
	}
}

func ToAPIAuthor(a model.Author) api.Author {
	return api.Author{User: ToAPIUser(a.User), ModuleCount: a.ModuleCount}
}

// --- modules and versions ---

func ToAPIModule(m model.Module) api.Module {
	return api.Module{
		UUID:        m.UUID,
		Name:        m.Name,
		Description: m.Description,
		Category:    string(m.Category),
		OwnerID:     m.OwnerID.String(),
		RepoURL:     m.RepoURL,
		Tags:        m.Tags,
		License:     m.License,
		Listed:      m.Listed,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func ToAPIModuleSummary(s model.ModuleSummary) api.ModuleSummary {
	return api.ModuleSummary{
		Module:         ToAPIModule(s.Module),
		Author:         s.Author,
		VerifiedAuthor: s.VerifiedAuthor,
		LatestVersion:  s.LatestVersion,
		LastUpdated:    ts(s.LastUpdated),
		Downloads:      s.Downloads,
		Rating:         s.Rating,
	}
}

// ToAPIModuleSummaries never returns nil so empty lists encode as [].
func ToAPIModuleSummaries(in []model.ModuleSummary) []api.ModuleSummary {
	out := make([]api.ModuleSummary, 0, len(in))
	for _, s := range in {
		out = append(out, ToAPIModuleSummary(s))
	}
	return out
}

func ToAPIVersion(v model.Version) api.Version {
	return api.Version{
		ModuleUUID:  v.ModuleUUID,
		Version:     v.Version,
		Changelog:   v.Changelog,
		PackageKey:  v.PackageKey,
		Downloads:   v.Downloads,
		PublishedBy: idOrEmpty(v.PublishedBy),
		PublishedAt: ts(v.PublishedAt),
		Seq:         v.Seq,
	}
}

func ToAPIVersions(in []model.Version) []api.Version {
	out := make([]api.Version, 0, len(in))
	for _, v := range in {
		out = append(out, ToAPIVersion(v))
	}
	return out
}

// --- submissions ---

func FromAPIDraft(d api.Draft) model.ModuleDraft {
	return model.ModuleDraft{
		ModuleUUID:  d.ModuleUUID,
		Name:        d.Name,
		Description: d.Description,
		Category:    model.Category(d.Category),
		Version:     d.Version,
		RepoURL:     d.RepoURL,
		Changelog:   d.Changelog,
		PackageKey:  d.PackageKey,
		Tags:        d.Tags,
		License:     d.License,
	}
}

func ToAPIDraft(d model.ModuleDraft) api.Draft {
	return api.Draft{
		ModuleUUID:  d.ModuleUUID,
		Name:        d.Name,
		Description: d.Description,
		Category:    string(d.Category),
		Version:     d.Version,
		RepoURL:     d.RepoURL,
		Changelog:   d.Changelog,
		PackageKey:  d.PackageKey,
		Tags:        d.Tags,
		License:     d.License,
	}
}

func ToAPISubmission(s model.Submission) api.Submission {
	out := api.Submission{
		ID:          s.ID.String(),
		Draft:       ToAPIDraft(s.Draft),
		Status:      string(s.Status),
		Reason:      s.Reason,
		SubmitterID: s.SubmitterID.String(),
		CreatedAt:   ts(s.CreatedAt),
	}
	if s.ReviewedBy.Valid {
		out.ReviewedBy = s.ReviewedBy.UUID.String()
	}
	if s.ResolvedAt != nil {
		out.ResolvedAt = ts(*s.ResolvedAt)
	}
	return out
}

func ToAPISubmissions(in []model.Submission) []api.Submission {
	out := make([]api.Submission, 0, len(in))
	for _, s := range in {
		out = append(out, ToAPISubmission(s))
	}
	return out
}

// --- reviews ---

func ToAPIReview(r model.Review) api.Review {
	return api.Review{
		ID:           r.ID.String(),
		ModuleUUID:   r.ModuleUUID,
		UserID:       r.UserID.String(),
		Username:     r.Username,
		AvatarURL:    r.AvatarURL,
		Rating:       r.Rating,
		Title:        r.Title,
		Body:         r.Body,
		HelpfulCount: r.HelpfulCount,
		CreatedAt:    ts(r.CreatedAt),
		UpdatedAt:    ts(r.UpdatedAt),
	}
}

func ToAPIReviews(in []model.Review) []api.Review {
	out := make([]api.Review, 0, len(in))
	for _, r := range in {
		out = append(out, ToAPIReview(r))
	}
	return out
}

func ToAPIRatingSummary(s model.RatingSummary) api.RatingSummary {
	h := make(map[int]int64, len(s.Histogram))
	for k, v := range s.Histogram {
		h[k] = v
	}
	return api.RatingSummary{Average: s.Average, Count: s.Count, Histogram: h}
}

// --- categories ---

func ToAPICategories(in []model.CategoryInfo) []api.Category {
	out := make([]api.Category, 0, len(in))
	for _, c := range in {
		out = append(out, api.Category{ID: string(c.ID), Name: c.Name, Icon: c.Icon})
	}
	return out
}
