// Package api holds the wire messages of the barforge.registry.v1.Registry
// service. Messages travel as JSON.
package api

import "time"

type Empty struct{}

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	WebsiteURL  string    `json:"website_url,omitempty"`
	Role        string    `json:"role"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

type Author struct {
	User
	ModuleCount int64 `json:"module_count"`
}

type Module struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	OwnerID     string    `json:"owner_id"`
	RepoURL     string    `json:"repo_url"`
	Tags        []string  `json:"tags,omitempty"`
	License     string    `json:"license,omitempty"`
	Listed      bool      `json:"listed"`
	CreatedAt   time.Time `json:"created_at"`
}

type ModuleSummary struct {
	Module
	Author         string     `json:"author"`
	VerifiedAuthor bool       `json:"verified_author"`
	LatestVersion  string     `json:"latest_version"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
	Downloads      int64      `json:"downloads"`
	Rating         *float64   `json:"rating,omitempty"`
}

type Version struct {
	ModuleUUID  string     `json:"module_uuid"`
	Version     string     `json:"version"`
	Changelog   string     `json:"changelog,omitempty"`
	PackageKey  string     `json:"package_key,omitempty"`
	Downloads   int64      `json:"downloads"`
	PublishedBy string     `json:"published_by"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Seq         int64      `json:"seq"`
}

type Draft struct {
	ModuleUUID  string   `json:"module_uuid"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Version     string   `json:"version"`
	RepoURL     string   `json:"repo_url"`
	Changelog   string   `json:"changelog,omitempty"`
	PackageKey  string   `json:"package_key,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	License     string   `json:"license,omitempty"`
}

type Submission struct {
	ID          string     `json:"id"`
	Draft       Draft      `json:"draft"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	SubmitterID string     `json:"submitter_id"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type Review struct {
	ID           string     `json:"id"`
	ModuleUUID   string     `json:"module_uuid"`
	UserID       string     `json:"user_id"`
	Username     string     `json:"username,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	Rating       int        `json:"rating"`
	Title        string     `json:"title,omitempty"`
	Body         string     `json:"body,omitempty"`
	HelpfulCount int64      `json:"helpful_count"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type RatingSummary struct {
	Average   float64       `json:"average"`
	Count     int64         `json:"count"`
	Histogram map[int]int64 `json:"histogram"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Requests and responses.

type GetAuthorRequest struct {
	Username string `json:"username"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	WebsiteURL  string `json:"website_url"`
}

type SetRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type SetVerifiedRequest struct {
	UserID   string `json:"user_id"`
	Verified bool   `json:"verified"`
}

type SubmitRequest struct {
	Draft Draft `json:"draft"`
}

type SubmissionIDRequest struct {
	ID string `json:"id"`
}

type ReviewSubmissionRequest struct {
	ID       string `json:"id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type PageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type SubmissionList struct {
	Submissions []Submission `json:"submissions"`
}

type ModuleRequest struct {
	ModuleUUID string `json:"module_uuid"`
}

type VersionRequest struct {
	ModuleUUID string `json:"module_uuid"`
	Version    string `json:"version"`
}

type PublishRequest struct {
	ModuleUUID string `json:"module_uuid"`
	Version    string `json:"version"`
	Changelog  string `json:"changelog,omitempty"`
	PackageKey string `json:"package_key"`
}

type VersionList struct {
	Versions []Version `json:"versions"`
}

type DownloadURLResponse struct {
	URL string `json:"url"`
}

type UpsertReviewRequest struct {
	ModuleUUID string `json:"module_uuid"`
	Rating     int    `json:"rating"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
}

type DeleteReviewRequest struct {
	ModuleUUID string `json:"module_uuid"`
	// AuthorID defaults to the caller.
	AuthorID string `json:"author_id,omitempty"`
}

type ListReviewsRequest struct {
	ModuleUUID string `json:"module_uuid"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

type ReviewList struct {
	Reviews []Review `json:"reviews"`
	Total   int64    `json:"total"`
}

type SetFeaturedRequest struct {
	ModuleUUID string `json:"module_uuid"`
	Position   int    `json:"position"`
}

type LimitRequest struct {
	Limit int `json:"limit,omitempty"`
}

type SearchRequest struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

type ModuleList struct {
	Modules []ModuleSummary `json:"modules"`
}

type CategoryList struct {
	Categories []Category `json:"categories"`
}

type ModuleDetail struct {
	Summary ModuleSummary `json:"summary"`
	Rating  RatingSummary `json:"rating"`
}
