// Package grpcserver exposes the registry's gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jtaw5649/barforge-registry/internal/api"
	"github.com/jtaw5649/barforge-registry/internal/convert"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/service"
)

// Services groups the application services the server dispatches to.
type Services struct {
	Identity   service.IdentityService
	Moderation service.ModerationService
	Ledger     service.LedgerService
	Reviews    service.ReviewService
	Curation   service.CurationService
}

// Server wires services into gRPC handlers.
type Server struct {
	svc Services
	log *zap.Logger
}

var _ RegistryServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(svc Services, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// toStatus maps domain errors onto gRPC codes. Unknown errors are logged and
// reported as Internal without detail.
func (s *Server) toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, errs.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, errs.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, errs.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, errs.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, errs.ErrConflict):
		code = codes.AlreadyExists
	case errors.Is(err, errs.ErrRateLimited):
		code = codes.ResourceExhausted
	case errors.Is(err, service.ErrNoObjectStore):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		s.log.Error("internal error", zap.Error(err))
		return status.Error(codes.Internal, "internal")
	}
	return status.Error(code, err.Error())
}

func invalidArg(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// --- identity ---

// GetMe returns the caller's account.
func (s *Server) GetMe(ctx context.Context, _ *api.Empty) (*api.User, error) {
	u := UserFromCtx(ctx)
	if u == nil {
		return nil, status.Error(codes.Unauthenticated, "no session")
	}
	out := convert.ToAPIUser(*u)
	return &out, nil
}

func (s *Server) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.User, error) {
	u, err := s.svc.Identity.UpdateProfile(ctx, UserFromCtx(ctx), model.Profile{
		DisplayName: req.DisplayName, Bio: req.Bio, WebsiteURL: req.WebsiteURL,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIUser(*u)
	return &out, nil
}

func (s *Server) GetAuthor(ctx context.Context, req *api.GetAuthorRequest) (*api.Author, error) {
	a, err := s.svc.Identity.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIAuthor(*a)
	return &out, nil
}

func (s *Server) SetRole(ctx context.Context, req *api.SetRoleRequest) (*api.Empty, error) {
	id, err := convert.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, invalidArg(err)
	}
	if err := s.svc.Identity.SetRole(ctx, UserFromCtx(ctx), id, model.Role(req.Role)); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) SetVerified(ctx context.Context, req *api.SetVerifiedRequest) (*api.Empty, error) {
	id, err := convert.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, invalidArg(err)
	}
	if err := s.svc.Identity.SetVerified(ctx, UserFromCtx(ctx), id, req.Verified); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

// Logout revokes the session carried by the call.
func (s *Server) Logout(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	if UserFromCtx(ctx) == nil {
		return nil, status.Error(codes.Unauthenticated, "no session")
	}
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if err := s.svc.Identity.Revoke(ctx, tok); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- moderation ---

func (s *Server) Submit(ctx context.Context, req *api.SubmitRequest) (*api.Submission, error) {
	sub, err := s.svc.Moderation.Submit(ctx, UserFromCtx(ctx), convert.FromAPIDraft(req.Draft))
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPISubmission(*sub)
	return &out, nil
}

func (s *Server) ReviewSubmission(ctx context.Context, req *api.ReviewSubmissionRequest) (*api.Submission, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, invalidArg(err)
	}
	sub, err := s.svc.Moderation.Review(ctx, UserFromCtx(ctx), id, model.Decision(req.Decision), req.Reason)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPISubmission(*sub)
	return &out, nil
}

func (s *Server) ListPending(ctx context.Context, req *api.PageRequest) (*api.SubmissionList, error) {
	subs, err := s.svc.Moderation.ListPending(ctx, UserFromCtx(ctx), req.Limit, req.Offset)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.SubmissionList{Submissions: convert.ToAPISubmissions(subs)}, nil
}

func (s *Server) ListMySubmissions(ctx context.Context, _ *api.Empty) (*api.SubmissionList, error) {
	subs, err := s.svc.Moderation.ListMine(ctx, UserFromCtx(ctx))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.SubmissionList{Submissions: convert.ToAPISubmissions(subs)}, nil
}

func (s *Server) GetSubmission(ctx context.Context, req *api.SubmissionIDRequest) (*api.Submission, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, invalidArg(err)
	}
	sub, err := s.svc.Moderation.Get(ctx, UserFromCtx(ctx), id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPISubmission(*sub)
	return &out, nil
}

// --- ledger ---

func (s *Server) Publish(ctx context.Context, req *api.PublishRequest) (*api.Version, error) {
	v, err := s.svc.Ledger.Publish(ctx, UserFromCtx(ctx), req.ModuleUUID, req.Version, req.Changelog, req.PackageKey)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIVersion(*v)
	return &out, nil
}

func (s *Server) ListVersions(ctx context.Context, req *api.ModuleRequest) (*api.VersionList, error) {
	vs, err := s.svc.Ledger.ListVersions(ctx, req.ModuleUUID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.VersionList{Versions: convert.ToAPIVersions(vs)}, nil
}

func (s *Server) GetVersion(ctx context.Context, req *api.VersionRequest) (*api.Version, error) {
	v, err := s.svc.Ledger.GetVersion(ctx, req.ModuleUUID, req.Version)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIVersion(*v)
	return &out, nil
}

func (s *Server) LatestVersion(ctx context.Context, req *api.ModuleRequest) (*api.Version, error) {
	v, err := s.svc.Ledger.LatestVersion(ctx, req.ModuleUUID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIVersion(*v)
	return &out, nil
}

func (s *Server) RecordDownload(ctx context.Context, req *api.VersionRequest) (*api.Empty, error) {
	if err := s.svc.Ledger.RecordDownload(ctx, req.ModuleUUID, req.Version); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) DownloadURL(ctx context.Context, req *api.VersionRequest) (*api.DownloadURLResponse, error) {
	url, err := s.svc.Ledger.DownloadURL(ctx, req.ModuleUUID, req.Version)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.DownloadURLResponse{URL: url}, nil
}

func (s *Server) Unlist(ctx context.Context, req *api.ModuleRequest) (*api.Empty, error) {
	if err := s.svc.Ledger.Unlist(ctx, UserFromCtx(ctx), req.ModuleUUID); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) Relist(ctx context.Context, req *api.ModuleRequest) (*api.Empty, error) {
	if err := s.svc.Ledger.Relist(ctx, UserFromCtx(ctx), req.ModuleUUID); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- reviews ---

func (s *Server) UpsertReview(ctx context.Context, req *api.UpsertReviewRequest) (*api.Review, error) {
	rv, err := s.svc.Reviews.Upsert(ctx, UserFromCtx(ctx), req.ModuleUUID, req.Rating, req.Title, req.Body)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIReview(*rv)
	return &out, nil
}

// DeleteReview removes the caller's review, or another author's when AuthorID is set.
func (s *Server) DeleteReview(ctx context.Context, req *api.DeleteReviewRequest) (*api.Empty, error) {
	actor := UserFromCtx(ctx)
	if actor == nil {
		return nil, status.Error(codes.Unauthenticated, "no session")
	}
	author := actor.ID
	if req.AuthorID != "" {
		id, err := convert.ParseID("author_id", req.AuthorID)
		if err != nil {
			return nil, invalidArg(err)
		}
		author = id
	}
	if err := s.svc.Reviews.Delete(ctx, actor, req.ModuleUUID, author); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) ListReviews(ctx context.Context, req *api.ListReviewsRequest) (*api.ReviewList, error) {
	rs, total, err := s.svc.Reviews.List(ctx, req.ModuleUUID, req.Limit, req.Offset)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.ReviewList{Reviews: convert.ToAPIReviews(rs), Total: total}, nil
}

func (s *Server) GetRatingSummary(ctx context.Context, req *api.ModuleRequest) (*api.RatingSummary, error) {
	sum, err := s.svc.Reviews.RatingSummary(ctx, req.ModuleUUID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := convert.ToAPIRatingSummary(sum)
	return &out, nil
}

// --- curation ---

func (s *Server) SetFeatured(ctx context.Context, req *api.SetFeaturedRequest) (*api.Empty, error) {
	if err := s.svc.Curation.SetFeatured(ctx, UserFromCtx(ctx), req.ModuleUUID, req.Position); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) ClearFeatured(ctx context.Context, req *api.ModuleRequest) (*api.Empty, error) {
	if err := s.svc.Curation.ClearFeatured(ctx, UserFromCtx(ctx), req.ModuleUUID); err != nil {
		return nil, s.toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) ListFeatured(ctx context.Context, _ *api.Empty) (*api.ModuleList, error) {
	ms, err := s.svc.Curation.ListFeatured(ctx)
	return s.moduleList(ms, err)
}

func (s *Server) Popular(ctx context.Context, req *api.LimitRequest) (*api.ModuleList, error) {
	ms, err := s.svc.Curation.Popular(ctx, req.Limit)
	return s.moduleList(ms, err)
}

func (s *Server) Recent(ctx context.Context, req *api.LimitRequest) (*api.ModuleList, error) {
	ms, err := s.svc.Curation.Recent(ctx, req.Limit)
	return s.moduleList(ms, err)
}

func (s *Server) Search(ctx context.Context, req *api.SearchRequest) (*api.ModuleList, error) {
	ms, err := s.svc.Curation.Search(ctx, req.Query, model.Category(req.Category), req.Limit, req.Offset)
	return s.moduleList(ms, err)
}

func (s *Server) ListCategories(context.Context, *api.Empty) (*api.CategoryList, error) {
	return &api.CategoryList{Categories: convert.ToAPICategories(s.svc.Curation.Categories())}, nil
}

// GetModule returns a module's read model with its rating breakdown.
func (s *Server) GetModule(ctx context.Context, req *api.ModuleRequest) (*api.ModuleDetail, error) {
	sum, err := s.svc.Curation.Summary(ctx, req.ModuleUUID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	rating, err := s.svc.Reviews.RatingSummary(ctx, req.ModuleUUID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.ModuleDetail{
		Summary: convert.ToAPIModuleSummary(*sum),
		Rating:  convert.ToAPIRatingSummary(rating),
	}, nil
}

func (s *Server) ListAuthorModules(ctx context.Context, req *api.GetAuthorRequest) (*api.ModuleList, error) {
	a, err := s.svc.Identity.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, s.toStatus(err)
	}
	ms, err := s.svc.Curation.AuthorModules(ctx, UserFromCtx(ctx), a.ID)
	return s.moduleList(ms, err)
}

func (s *Server) moduleList(ms []model.ModuleSummary, err error) (*api.ModuleList, error) {
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &api.ModuleList{Modules: convert.ToAPIModuleSummaries(ms)}, nil
}

// OutgoingBearer attaches a session token to an outgoing client context.
func OutgoingBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
