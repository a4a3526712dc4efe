package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jtaw5649/barforge-registry/internal/authz"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository"
)

// LedgerService manages published modules and their append-only versions.
type LedgerService interface {
	// Publish appends a version to a module the caller owns.
	Publish(ctx context.Context, owner *model.User, moduleUUID, version, changelog, packageKey string) (*model.Version, error)
	// RecordDownload counts one download of a version.
	RecordDownload(ctx context.Context, moduleUUID, version string) error
	// Unlist hides a module from discovery. Owner or admin.
	Unlist(ctx context.Context, u *model.User, moduleUUID string) error
	// Relist makes an unlisted module discoverable again. Owner or admin.
	Relist(ctx context.Context, u *model.User, moduleUUID string) error
	// GetModule returns a module whether or not it is listed.
	GetModule(ctx context.Context, moduleUUID string) (*model.Module, error)
	// ListVersions returns the module's versions in publish order.
	ListVersions(ctx context.Context, moduleUUID string) ([]model.Version, error)
	// GetVersion returns one version.
	GetVersion(ctx context.Context, moduleUUID, version string) (*model.Version, error)
	// LatestVersion returns the most recently published version.
	LatestVersion(ctx context.Context, moduleUUID string) (*model.Version, error)
	// DownloadURL returns a presigned package URL and counts the download.
	DownloadURL(ctx context.Context, moduleUUID, version string) (string, error)
}

// Presigner turns a package key into a time-limited download URL.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

// ErrNoObjectStore is returned by DownloadURL when no presigner is configured.
var ErrNoObjectStore = errors.New("ledger: object store not configured")

type LedgerServiceImpl struct {
	modules repository.ModuleRepository
	presign Presigner
	log     *zap.Logger
}

// NewLedgerService constructs LedgerService. presign may be nil.
func NewLedgerService(modules repository.ModuleRepository, presign Presigner, log *zap.Logger) *LedgerServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerServiceImpl{modules: modules, presign: presign, log: log}
}

// Publish appends a version. The repository assigns the publish timestamp and
// sequence under the module row lock.
func (s *LedgerServiceImpl) Publish(ctx context.Context, owner *model.User, moduleUUID, version, changelog, packageKey string) (*model.Version, error) {
	if err := authz.Check(owner, authz.ActPublish); err != nil {
		return nil, err
	}
	m, err := s.modules.Get(ctx, moduleUUID)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != owner.ID {
		return nil, errs.ErrForbidden
	}

	version = strings.TrimSpace(version)
	packageKey = strings.TrimSpace(packageKey)
	switch {
	case !model.ValidVersion(version):
		return nil, fmt.Errorf("%w: version %q is not semver", errs.ErrInvalidInput, version)
	case packageKey == "":
		return nil, fmt.Errorf("%w: package key is required", errs.ErrInvalidInput)
	case tooLong(changelog, maxChangelogLen):
		return nil, fmt.Errorf("%w: changelog too long", errs.ErrInvalidInput)
	}

	v := &model.Version{
		ModuleUUID:  moduleUUID,
		Version:     version,
		Changelog:   changelog,
		PackageKey:  packageKey,
		PublishedBy: owner.ID,
	}
	if err := s.modules.AppendVersion(ctx, v); err != nil {
		return nil, err
	}
	s.log.Info("version published", zap.String("module", moduleUUID), zap.String("version", version),
		zap.Int64("seq", v.Seq))
	return v, nil
}

// RecordDownload increments the version's counter in storage.
func (s *LedgerServiceImpl) RecordDownload(ctx context.Context, moduleUUID, version string) error {
	return s.modules.IncrementDownloads(ctx, moduleUUID, version)
}

// Unlist hides the module; its versions stay readable.
func (s *LedgerServiceImpl) Unlist(ctx context.Context, u *model.User, moduleUUID string) error {
	return s.setListed(ctx, u, moduleUUID, false)
}

// Relist restores a module to discovery.
func (s *LedgerServiceImpl) Relist(ctx context.Context, u *model.User, moduleUUID string) error {
	return s.setListed(ctx, u, moduleUUID, true)
}

func (s *LedgerServiceImpl) setListed(ctx context.Context, u *model.User, moduleUUID string, listed bool) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	m, err := s.modules.Get(ctx, moduleUUID)
	if err != nil {
		return err
	}
	if err := authz.CheckOwner(u, m.OwnerID, authz.ActManageAnyModule); err != nil {
		return err
	}
	if err := s.modules.SetListed(ctx, moduleUUID, listed); err != nil {
		return err
	}
	s.log.Info("module visibility changed", zap.String("module", moduleUUID), zap.Bool("listed", listed),
		zap.String("actor", u.ID.String()))
	return nil
}

// GetModule returns the module record.
func (s *LedgerServiceImpl) GetModule(ctx context.Context, moduleUUID string) (*model.Module, error) {
	return s.modules.Get(ctx, moduleUUID)
}

// ListVersions returns the ledger; unknown modules are ErrNotFound.
func (s *LedgerServiceImpl) ListVersions(ctx context.Context, moduleUUID string) ([]model.Version, error) {
	if _, err := s.modules.Get(ctx, moduleUUID); err != nil {
		return nil, err
	}
	return s.modules.ListVersions(ctx, moduleUUID)
}

// GetVersion returns one version.
func (s *LedgerServiceImpl) GetVersion(ctx context.Context, moduleUUID, version string) (*model.Version, error) {
	return s.modules.GetVersion(ctx, moduleUUID, version)
}

// LatestVersion returns the last ledger entry.
func (s *LedgerServiceImpl) LatestVersion(ctx context.Context, moduleUUID string) (*model.Version, error) {
	vs, err := s.ListVersions(ctx, moduleUUID)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, errs.ErrNotFound
	}
	return &vs[len(vs)-1], nil
}

// DownloadURL presigns the package and counts the download once the URL is issued.
func (s *LedgerServiceImpl) DownloadURL(ctx context.Context, moduleUUID, version string) (string, error) {
	if s.presign == nil {
		return "", ErrNoObjectStore
	}
	v, err := s.modules.GetVersion(ctx, moduleUUID, version)
	if err != nil {
		return "", err
	}
	url, err := s.presign.PresignGet(ctx, v.PackageKey)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", v.PackageKey, err)
	}
	if err := s.modules.IncrementDownloads(ctx, moduleUUID, version); err != nil {
		return "", err
	}
	return url, nil
}
