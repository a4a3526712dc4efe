package model

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/mod/semver"
)

// Category classifies a module for discovery.
type Category string

const (
	CategorySystem       Category = "system"
	CategoryHardware     Category = "hardware"
	CategoryNetwork      Category = "network"
	CategoryAudio        Category = "audio"
	CategoryPower        Category = "power"
	CategoryTime         Category = "time"
	CategoryWorkspace    Category = "workspace"
	CategoryWindow       Category = "window"
	CategoryTray         Category = "tray"
	CategoryWeather      Category = "weather"
	CategoryProductivity Category = "productivity"
	CategoryMedia        Category = "media"
	CategoryCustom       Category = "custom"
)

// CategoryInfo describes a category for clients.
type CategoryInfo struct {
	ID   Category
	Name string
	Icon string
}

// Categories is the fixed catalogue in display order.
var Categories = []CategoryInfo{
	{CategorySystem, "System", "computer-symbolic"},
	{CategoryHardware, "Hardware", "drive-harddisk-symbolic"},
	{CategoryNetwork, "Network", "network-wireless-symbolic"},
	{CategoryAudio, "Audio", "audio-volume-high-symbolic"},
	{CategoryPower, "Power", "battery-symbolic"},
	{CategoryTime, "Time", "preferences-system-time-symbolic"},
	{CategoryWorkspace, "Workspace", "view-grid-symbolic"},
	{CategoryWindow, "Window", "window-symbolic"},
	{CategoryTray, "Tray", "view-more-horizontal-symbolic"},
	{CategoryWeather, "Weather", "weather-few-clouds-symbolic"},
	{CategoryProductivity, "Productivity", "task-due-symbolic"},
	{CategoryMedia, "Media", "multimedia-player-symbolic"},
	{CategoryCustom, "Custom", "applications-engineering-symbolic"},
}

// Valid reports whether c is in the catalogue.
func (c Category) Valid() bool {
	for _, ci := range Categories {
		if ci.ID == c {
			return true
		}
	}
	return false
}

// Module identifier errors.
var (
	ErrUUIDMissingAt      = errors.New("missing '@' separator")
	ErrUUIDEmptyName      = errors.New("empty name")
	ErrUUIDEmptyNamespace = errors.New("empty namespace")
	ErrUUIDTraversal      = errors.New("path traversal")
	ErrUUIDBadChar        = errors.New("invalid character")
)

// ValidateModuleUUID checks the "name@namespace" identifier. The identifier
// ends up in install paths on clients, so separators and ".." are refused.
func ValidateModuleUUID(s string) error {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return ErrUUIDMissingAt
	}
	name, ns := s[:at], s[at+1:]
	if name == "" {
		return ErrUUIDEmptyName
	}
	if ns == "" {
		return ErrUUIDEmptyNamespace
	}
	if name == ".." || ns == ".." || strings.Contains(s, "../") || strings.Contains(s, `..\`) {
		return ErrUUIDTraversal
	}
	if strings.ContainsAny(s, "/\\\x00") || strings.TrimSpace(s) != s {
		return ErrUUIDBadChar
	}
	return nil
}

// ValidVersion reports whether v is a full semantic version without a "v" prefix
// (e.g. "1.2.3", "2.0.0-rc.1", "1.0.0+build.5").
func ValidVersion(v string) bool {
	if v == "" || v[0] == 'v' {
		return false
	}
	sv := "v" + v
	if !semver.IsValid(sv) {
		return false
	}
	core := sv
	if i := strings.IndexByte(core, '+'); i >= 0 {
		core = core[:i]
	}
	return semver.Canonical(sv) == core
}

// CompareVersions orders two valid versions by semver precedence.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// Module is a published, addressable unit. Created only by submission approval.
type Module struct {
	UUID        string // "name@namespace", stable across versions
	Name        string
	Description string
	Category    Category
	OwnerID     uuid.UUID
	RepoURL     string
	Tags        []string
	License     string
	Listed      bool
	CreatedAt   time.Time
}

// Version is one immutable publication of a module's package.
type Version struct {
	ModuleUUID  string
	Version     string
	Changelog   string
	PackageKey  string // reference into the external object store
	Downloads   int64
	PublishedBy uuid.UUID
	PublishedAt time.Time // server-assigned, strictly increasing per module
	Seq         int64     // 1-based position in the module's ledger
}

// ModuleSummary is the read model for discovery listings.
type ModuleSummary struct {
	Module
	Author         string
	VerifiedAuthor bool
	LatestVersion  string
	LastUpdated    time.Time
	Downloads      int64
	Rating         *float64
}

// FeaturedEntry pairs a module with its curated display position.
type FeaturedEntry struct {
	ModuleUUID string
	Position   int
}
