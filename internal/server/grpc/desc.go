package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/jtaw5649/barforge-registry/internal/api"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "barforge.registry.v1.Registry"

// RegistryServer is the server API for the Registry service.
type RegistryServer interface {
	// identity
	GetMe(context.Context, *api.Empty) (*api.User, error)
	UpdateProfile(context.Context, *api.UpdateProfileRequest) (*api.User, error)
	GetAuthor(context.Context, *api.GetAuthorRequest) (*api.Author, error)
	SetRole(context.Context, *api.SetRoleRequest) (*api.Empty, error)
	SetVerified(context.Context, *api.SetVerifiedRequest) (*api.Empty, error)
	Logout(context.Context, *api.Empty) (*api.Empty, error)

	// moderation
	Submit(context.Context, *api.SubmitRequest) (*api.Submission, error)
	ReviewSubmission(context.Context, *api.ReviewSubmissionRequest) (*api.Submission, error)
	ListPending(context.Context, *api.PageRequest) (*api.SubmissionList, error)
	ListMySubmissions(context.Context, *api.Empty) (*api.SubmissionList, error)
	GetSubmission(context.Context, *api.SubmissionIDRequest) (*api.Submission, error)

	// ledger
	Publish(context.Context, *api.PublishRequest) (*api.Version, error)
	ListVersions(context.Context, *api.ModuleRequest) (*api.VersionList, error)
	GetVersion(context.Context, *api.VersionRequest) (*api.Version, error)
	LatestVersion(context.Context, *api.ModuleRequest) (*api.Version, error)
	RecordDownload(context.Context, *api.VersionRequest) (*api.Empty, error)
	DownloadURL(context.Context, *api.VersionRequest) (*api.DownloadURLResponse, error)
	Unlist(context.Context, *api.ModuleRequest) (*api.Empty, error)
	Relist(context.Context, *api.ModuleRequest) (*api.Empty, error)

	// reviews
	UpsertReview(context.Context, *api.UpsertReviewRequest) (*api.Review, error)
	DeleteReview(context.Context, *api.DeleteReviewRequest) (*api.Empty, error)
	ListReviews(context.Context, *api.ListReviewsRequest) (*api.ReviewList, error)
	GetRatingSummary(context.Context, *api.ModuleRequest) (*api.RatingSummary, error)

	// curation
	SetFeatured(context.Context, *api.SetFeaturedRequest) (*api.Empty, error)
	ClearFeatured(context.Context, *api.ModuleRequest) (*api.Empty, error)
	ListFeatured(context.Context, *api.Empty) (*api.ModuleList, error)
	Popular(context.Context, *api.LimitRequest) (*api.ModuleList, error)
	Recent(context.Context, *api.LimitRequest) (*api.ModuleList, error)
	Search(context.Context, *api.SearchRequest) (*api.ModuleList, error)
	ListCategories(context.Context, *api.Empty) (*api.CategoryList, error)
	GetModule(context.Context, *api.ModuleRequest) (*api.ModuleDetail, error)
	ListAuthorModules(context.Context, *api.GetAuthorRequest) (*api.ModuleList, error)
}

func unary[Req, Resp any](name string, call func(RegistryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if ic == nil {
				return call(srv.(RegistryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RegistryServer), ctx, req.(*Req))
			}
			return ic(ctx, in, info, h)
		},
	}
}

// RegistryServiceDesc describes the Registry service for grpc.Server.RegisterService.
var RegistryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetMe", RegistryServer.GetMe),
		unary("UpdateProfile", RegistryServer.UpdateProfile),
		unary("GetAuthor", RegistryServer.GetAuthor),
		unary("SetRole", RegistryServer.SetRole),
		unary("SetVerified", RegistryServer.SetVerified),
		unary("Logout", RegistryServer.Logout),

		unary("Submit", RegistryServer.Submit),
		unary("ReviewSubmission", RegistryServer.ReviewSubmission),
		unary("ListPending", RegistryServer.ListPending),
		unary("ListMySubmissions", RegistryServer.ListMySubmissions),
		unary("GetSubmission", RegistryServer.GetSubmission),

		unary("Publish", RegistryServer.Publish),
		unary("ListVersions", RegistryServer.ListVersions),
		unary("GetVersion", RegistryServer.GetVersion),
		unary("LatestVersion", RegistryServer.LatestVersion),
		unary("RecordDownload", RegistryServer.RecordDownload),
		unary("DownloadURL", RegistryServer.DownloadURL),
		unary("Unlist", RegistryServer.Unlist),
		unary("Relist", RegistryServer.Relist),

		unary("UpsertReview", RegistryServer.UpsertReview),
		unary("DeleteReview", RegistryServer.DeleteReview),
		unary("ListReviews", RegistryServer.ListReviews),
		unary("GetRatingSummary", RegistryServer.GetRatingSummary),

		unary("SetFeatured", RegistryServer.SetFeatured),
		unary("ClearFeatured", RegistryServer.ClearFeatured),
		unary("ListFeatured", RegistryServer.ListFeatured),
		unary("Popular", RegistryServer.Popular),
		unary("Recent", RegistryServer.Recent),
		unary("Search", RegistryServer.Search),
		unary("ListCategories", RegistryServer.ListCategories),
		unary("GetModule", RegistryServer.GetModule),
		unary("ListAuthorModules", RegistryServer.ListAuthorModules),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "barforge/registry/v1/registry.proto",
}

// RegisterRegistryServer registers srv on s.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&RegistryServiceDesc, srv)
}

// Client calls the Registry service over a client connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invoke calls method with in and decodes the reply into a new Resp.
func Invoke[Req, Resp any](ctx context.Context, c *Client, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
