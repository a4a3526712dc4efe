package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jtaw5649/barforge-registry/internal/api"
	pkgcrypto "github.com/jtaw5649/barforge-registry/internal/crypto"
	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository/memory"
	"github.com/jtaw5649/barforge-registry/internal/service"
)

const (
	bufSize        = 1 << 20
	testSessionKey = "test-session-key"
)

type harness struct {
	st       *memory.Store
	identity *service.IdentityServiceImpl
	client   *Client
}

func startBufGRPC(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memory.New()

	hasher, err := pkgcrypto.NewHasher([]byte(testSessionKey))
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	identity := service.NewIdentityService(st.Users(), st.Sessions(), hasher, time.Hour, nil, log)
	srv := New(Services{
		Identity:   identity,
		Moderation: service.NewModerationService(st.Submissions(), nil, log),
		Ledger:     service.NewLedgerService(st.Modules(), nil, log),
		Reviews:    service.NewReviewService(st.Reviews(), log),
		Curation:   service.NewCurationService(st.Catalog(), log),
	}, log)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoverUnary(log), AuthUnary(identity), LoggingUnary(log)))
	RegisterRegistryServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return &harness{st: st, identity: identity, client: NewClient(cc)}
}

// login creates a user with role and returns a context carrying its session.
func (h *harness) login(t *testing.T, name string, role model.Role) (*model.User, context.Context) {
	t.Helper()
	ctx := context.Background()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), ExternalID: "test:" + name, Username: name, Role: role}
	if err := h.st.Users().Create(ctx, u); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	tok, _, err := h.identity.CreateSession(ctx, u)
	if err != nil {
		t.Fatalf("session %s: %v", name, err)
	}
	return u, OutgoingBearer(ctx, tok)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("want %s, got %v", code, err)
	}
}

func testDraft(moduleUUID string) api.Draft {
	return api.Draft{
		ModuleUUID:  moduleUUID,
		Name:        "Clock",
		Description: "shows the time",
		Category:    "time",
		Version:     "1.0.0",
		RepoURL:     "https://github.com/alice/clock",
		PackageKey:  "clock@alice/1.0.0.tar.gz",
		Tags:        []string{"clock"},
	}
}

func TestServer_AnonymousReads(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	ctx := context.Background()

	cats, err := Invoke[api.Empty, api.CategoryList](ctx, h.client, "ListCategories", &api.Empty{})
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats.Categories) != len(model.Categories) {
		t.Fatalf("categories: %d", len(cats.Categories))
	}

	list, err := Invoke[api.Empty, api.ModuleList](ctx, h.client, "ListFeatured", &api.Empty{})
	if err != nil || list.Modules == nil || len(list.Modules) != 0 {
		t.Fatalf("featured: %+v %v", list, err)
	}

	_, err = Invoke[api.Empty, api.User](ctx, h.client, "GetMe", &api.Empty{})
	wantCode(t, err, codes.Unauthenticated)

	_, err = Invoke[api.SubmitRequest, api.Submission](ctx, h.client, "Submit", &api.SubmitRequest{Draft: testDraft("clock@alice")})
	wantCode(t, err, codes.Unauthenticated)

	_, err = Invoke[api.ModuleRequest, api.VersionList](ctx, h.client, "ListVersions", &api.ModuleRequest{ModuleUUID: "nope@x"})
	wantCode(t, err, codes.NotFound)
}

func TestServer_ExpiredSessionIsAnonymous(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	ctx := context.Background()

	u := &model.User{ID: uuid.Must(uuid.NewV4()), ExternalID: "test:dave", Username: "dave", Role: model.RoleUser}
	if err := h.st.Users().Create(ctx, u); err != nil {
		t.Fatalf("create dave: %v", err)
	}
	hasher, err := pkgcrypto.NewHasher([]byte(testSessionKey))
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	const stale = "stale-cli-token"
	if err := h.st.Sessions().Create(ctx, &model.Session{
		TokenHash: hasher.Hash(stale),
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("session: %v", err)
	}

	for _, tok := range []string{stale, "not-a-session"} {
		asStale := OutgoingBearer(ctx, tok)

		list, err := Invoke[api.Empty, api.ModuleList](asStale, h.client, "ListFeatured", &api.Empty{})
		if err != nil || list.Modules == nil {
			t.Fatalf("%s: featured must be served anonymously: %+v %v", tok, list, err)
		}
		if _, err := Invoke[api.SearchRequest, api.ModuleList](asStale, h.client, "Search", &api.SearchRequest{Query: "clock"}); err != nil {
			t.Fatalf("%s: search: %v", tok, err)
		}

		_, err = Invoke[api.SubmitRequest, api.Submission](asStale, h.client, "Submit", &api.SubmitRequest{Draft: testDraft("clock@dave")})
		wantCode(t, err, codes.Unauthenticated)
		_, err = Invoke[api.Empty, api.User](asStale, h.client, "GetMe", &api.Empty{})
		wantCode(t, err, codes.Unauthenticated)
	}

	bad := metadata.AppendToOutgoingContext(ctx, "authorization", "Token abc")
	_, err = Invoke[api.Empty, api.CategoryList](bad, h.client, "ListCategories", &api.Empty{})
	wantCode(t, err, codes.Unauthenticated)
}

func TestServer_E2E_SubmitApprovePublishReview(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	alice, asAlice := h.login(t, "alice", model.RoleUser)
	_, asBob := h.login(t, "bob", model.RoleUser)
	_, asMod := h.login(t, "mod", model.RoleModerator)
	_, asAdmin := h.login(t, "root", model.RoleAdmin)

	me, err := Invoke[api.Empty, api.User](asAlice, h.client, "GetMe", &api.Empty{})
	if err != nil || me.ID != alice.ID.String() || me.Role != "user" {
		t.Fatalf("me: %+v %v", me, err)
	}

	bad := testDraft("clock")
	_, err = Invoke[api.SubmitRequest, api.Submission](asAlice, h.client, "Submit", &api.SubmitRequest{Draft: bad})
	wantCode(t, err, codes.InvalidArgument)

	sub, err := Invoke[api.SubmitRequest, api.Submission](asAlice, h.client, "Submit", &api.SubmitRequest{Draft: testDraft("clock@alice")})
	if err != nil || sub.Status != "pending" {
		t.Fatalf("submit: %+v %v", sub, err)
	}

	_, err = Invoke[api.PageRequest, api.SubmissionList](asAlice, h.client, "ListPending", &api.PageRequest{})
	wantCode(t, err, codes.PermissionDenied)
	pending, err := Invoke[api.PageRequest, api.SubmissionList](asMod, h.client, "ListPending", &api.PageRequest{})
	if err != nil || len(pending.Submissions) != 1 || pending.Submissions[0].ID != sub.ID {
		t.Fatalf("pending: %+v %v", pending, err)
	}

	_, err = Invoke[api.SubmissionIDRequest, api.Submission](asBob, h.client, "GetSubmission", &api.SubmissionIDRequest{ID: sub.ID})
	wantCode(t, err, codes.PermissionDenied)
	_, err = Invoke[api.SubmissionIDRequest, api.Submission](asMod, h.client, "GetSubmission", &api.SubmissionIDRequest{ID: "zzz"})
	wantCode(t, err, codes.InvalidArgument)

	approve := &api.ReviewSubmissionRequest{ID: sub.ID, Decision: "approve"}
	done, err := Invoke[api.ReviewSubmissionRequest, api.Submission](asMod, h.client, "ReviewSubmission", approve)
	if err != nil || done.Status != "approved" || done.ReviewedBy == "" || done.ResolvedAt == nil {
		t.Fatalf("approve: %+v %v", done, err)
	}
	_, err = Invoke[api.ReviewSubmissionRequest, api.Submission](asMod, h.client, "ReviewSubmission", approve)
	wantCode(t, err, codes.FailedPrecondition)

	mine, err := Invoke[api.Empty, api.SubmissionList](asAlice, h.client, "ListMySubmissions", &api.Empty{})
	if err != nil || len(mine.Submissions) != 1 || mine.Submissions[0].Status != "approved" {
		t.Fatalf("mine: %+v %v", mine, err)
	}

	pub := &api.PublishRequest{ModuleUUID: "clock@alice", Version: "1.1.0", PackageKey: "clock@alice/1.1.0.tar.gz"}
	_, err = Invoke[api.PublishRequest, api.Version](asBob, h.client, "Publish", pub)
	wantCode(t, err, codes.PermissionDenied)
	v, err := Invoke[api.PublishRequest, api.Version](asAlice, h.client, "Publish", pub)
	if err != nil || v.Seq != 2 || v.PublishedBy != alice.ID.String() {
		t.Fatalf("publish: %+v %v", v, err)
	}
	_, err = Invoke[api.PublishRequest, api.Version](asAlice, h.client, "Publish", pub)
	wantCode(t, err, codes.AlreadyExists)

	vs, err := Invoke[api.ModuleRequest, api.VersionList](context.Background(), h.client, "ListVersions", &api.ModuleRequest{ModuleUUID: "clock@alice"})
	if err != nil || len(vs.Versions) != 2 || vs.Versions[0].Version != "1.0.0" || vs.Versions[1].Version != "1.1.0" {
		t.Fatalf("versions: %+v %v", vs, err)
	}
	latest, err := Invoke[api.ModuleRequest, api.Version](context.Background(), h.client, "LatestVersion", &api.ModuleRequest{ModuleUUID: "clock@alice"})
	if err != nil || latest.Version != "1.1.0" {
		t.Fatalf("latest: %+v %v", latest, err)
	}

	dl := &api.VersionRequest{ModuleUUID: "clock@alice", Version: "1.1.0"}
	_, err = Invoke[api.VersionRequest, api.DownloadURLResponse](context.Background(), h.client, "DownloadURL", dl)
	wantCode(t, err, codes.Unavailable)
	if _, err := Invoke[api.VersionRequest, api.Empty](context.Background(), h.client, "RecordDownload", dl); err != nil {
		t.Fatalf("record download: %v", err)
	}

	_, err = Invoke[api.UpsertReviewRequest, api.Review](asBob, h.client, "UpsertReview",
		&api.UpsertReviewRequest{ModuleUUID: "clock@alice", Rating: 6})
	wantCode(t, err, codes.InvalidArgument)
	rv, err := Invoke[api.UpsertReviewRequest, api.Review](asBob, h.client, "UpsertReview",
		&api.UpsertReviewRequest{ModuleUUID: "clock@alice", Rating: 4, Title: "nice"})
	if err != nil || rv.Username != "bob" {
		t.Fatalf("review: %+v %v", rv, err)
	}
	if _, err := Invoke[api.UpsertReviewRequest, api.Review](asAlice, h.client, "UpsertReview",
		&api.UpsertReviewRequest{ModuleUUID: "clock@alice", Rating: 5}); err != nil {
		t.Fatalf("review alice: %v", err)
	}

	detail, err := Invoke[api.ModuleRequest, api.ModuleDetail](context.Background(), h.client, "GetModule", &api.ModuleRequest{ModuleUUID: "clock@alice"})
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Rating.Average != 4.5 || detail.Rating.Count != 2 || detail.Summary.Author != "alice" ||
		detail.Summary.LatestVersion != "1.1.0" || detail.Summary.Downloads != 1 {
		t.Fatalf("detail: %+v", detail)
	}

	reviews, err := Invoke[api.ListReviewsRequest, api.ReviewList](context.Background(), h.client, "ListReviews",
		&api.ListReviewsRequest{ModuleUUID: "clock@alice"})
	if err != nil || reviews.Total != 2 || len(reviews.Reviews) != 2 {
		t.Fatalf("reviews: %+v %v", reviews, err)
	}

	_, err = Invoke[api.DeleteReviewRequest, api.Empty](asAlice, h.client, "DeleteReview",
		&api.DeleteReviewRequest{ModuleUUID: "clock@alice", AuthorID: rv.UserID})
	wantCode(t, err, codes.PermissionDenied)
	if _, err := Invoke[api.DeleteReviewRequest, api.Empty](asAdmin, h.client, "DeleteReview",
		&api.DeleteReviewRequest{ModuleUUID: "clock@alice", AuthorID: rv.UserID}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	sum, err := Invoke[api.ModuleRequest, api.RatingSummary](context.Background(), h.client, "GetRatingSummary", &api.ModuleRequest{ModuleUUID: "clock@alice"})
	if err != nil || sum.Average != 5 || sum.Count != 1 || sum.Histogram[5] != 1 {
		t.Fatalf("rating: %+v %v", sum, err)
	}

	feat := &api.SetFeaturedRequest{ModuleUUID: "clock@alice", Position: 1}
	_, err = Invoke[api.SetFeaturedRequest, api.Empty](asMod, h.client, "SetFeatured", feat)
	wantCode(t, err, codes.PermissionDenied)
	if _, err := Invoke[api.SetFeaturedRequest, api.Empty](asAdmin, h.client, "SetFeatured", feat); err != nil {
		t.Fatalf("feature: %v", err)
	}
	featured, err := Invoke[api.Empty, api.ModuleList](context.Background(), h.client, "ListFeatured", &api.Empty{})
	if err != nil || len(featured.Modules) != 1 || featured.Modules[0].UUID != "clock@alice" {
		t.Fatalf("featured: %+v %v", featured, err)
	}

	found, err := Invoke[api.SearchRequest, api.ModuleList](context.Background(), h.client, "Search", &api.SearchRequest{Query: "clock"})
	if err != nil || len(found.Modules) != 1 {
		t.Fatalf("search: %+v %v", found, err)
	}
	_, err = Invoke[api.SearchRequest, api.ModuleList](context.Background(), h.client, "Search", &api.SearchRequest{Category: "games"})
	wantCode(t, err, codes.InvalidArgument)

	if _, err := Invoke[api.ModuleRequest, api.Empty](asAlice, h.client, "Unlist", &api.ModuleRequest{ModuleUUID: "clock@alice"}); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	featured, err = Invoke[api.Empty, api.ModuleList](context.Background(), h.client, "ListFeatured", &api.Empty{})
	if err != nil || len(featured.Modules) != 0 {
		t.Fatalf("featured after unlist: %+v %v", featured, err)
	}
	anon, err := Invoke[api.GetAuthorRequest, api.ModuleList](context.Background(), h.client, "ListAuthorModules", &api.GetAuthorRequest{Username: "alice"})
	if err != nil || len(anon.Modules) != 0 {
		t.Fatalf("anon author modules: %+v %v", anon, err)
	}
	own, err := Invoke[api.GetAuthorRequest, api.ModuleList](asAlice, h.client, "ListAuthorModules", &api.GetAuthorRequest{Username: "alice"})
	if err != nil || len(own.Modules) != 1 || own.Modules[0].Listed {
		t.Fatalf("own author modules: %+v %v", own, err)
	}
}

func TestServer_AdminAndProfile(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	alice, asAlice := h.login(t, "alice", model.RoleUser)
	_, asAdmin := h.login(t, "root", model.RoleAdmin)

	u, err := Invoke[api.UpdateProfileRequest, api.User](asAlice, h.client, "UpdateProfile",
		&api.UpdateProfileRequest{DisplayName: " Alice ", WebsiteURL: "https://alice.dev"})
	if err != nil || u.DisplayName != "Alice" || u.WebsiteURL != "https://alice.dev" {
		t.Fatalf("profile: %+v %v", u, err)
	}
	_, err = Invoke[api.UpdateProfileRequest, api.User](asAlice, h.client, "UpdateProfile",
		&api.UpdateProfileRequest{WebsiteURL: "ftp://alice.dev"})
	wantCode(t, err, codes.InvalidArgument)

	role := &api.SetRoleRequest{UserID: alice.ID.String(), Role: "moderator"}
	_, err = Invoke[api.SetRoleRequest, api.Empty](asAlice, h.client, "SetRole", role)
	wantCode(t, err, codes.PermissionDenied)
	if _, err := Invoke[api.SetRoleRequest, api.Empty](asAdmin, h.client, "SetRole", role); err != nil {
		t.Fatalf("set role: %v", err)
	}
	_, err = Invoke[api.SetRoleRequest, api.Empty](asAdmin, h.client, "SetRole", &api.SetRoleRequest{UserID: "x", Role: "admin"})
	wantCode(t, err, codes.InvalidArgument)

	if _, err := Invoke[api.SetVerifiedRequest, api.Empty](asAdmin, h.client, "SetVerified",
		&api.SetVerifiedRequest{UserID: alice.ID.String(), Verified: true}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	a, err := Invoke[api.GetAuthorRequest, api.Author](context.Background(), h.client, "GetAuthor", &api.GetAuthorRequest{Username: "Alice"})
	if err != nil || !a.Verified || a.Role != "moderator" || a.ModuleCount != 0 {
		t.Fatalf("author: %+v %v", a, err)
	}
	_, err = Invoke[api.GetAuthorRequest, api.Author](context.Background(), h.client, "GetAuthor", &api.GetAuthorRequest{Username: "ghost"})
	wantCode(t, err, codes.NotFound)

	if _, err := Invoke[api.Empty, api.Empty](asAlice, h.client, "Logout", &api.Empty{}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = Invoke[api.Empty, api.User](asAlice, h.client, "GetMe", &api.Empty{})
	wantCode(t, err, codes.Unauthenticated)
}

func TestToStatus(t *testing.T) {
	t.Parallel()
	s := New(Services{}, zaptest.NewLogger(t))

	cases := []struct {
		err  error
		code codes.Code
	}{
		{errs.ErrInvalidInput, codes.InvalidArgument},
		{fmt.Errorf("%w: name", errs.ErrInvalidSubmission), codes.InvalidArgument},
		{errs.ErrInvalidRating, codes.InvalidArgument},
		{errs.ErrForbidden, codes.PermissionDenied},
		{errs.ErrUnauthenticated, codes.Unauthenticated},
		{errs.ErrNotFound, codes.NotFound},
		{errs.ErrInvalidState, codes.FailedPrecondition},
		{errs.ErrConflict, codes.AlreadyExists},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{service.ErrNoObjectStore, codes.Unavailable},
		{context.Canceled, codes.Canceled},
		{errors.New("db down"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(s.toStatus(tc.err)); got != tc.code {
			t.Errorf("%v: got %s, want %s", tc.err, got, tc.code)
		}
	}
	if st, _ := status.FromError(s.toStatus(errors.New("secret dsn"))); st.Message() != "internal" {
		t.Fatalf("internal errors must not leak detail: %q", st.Message())
	}
}
