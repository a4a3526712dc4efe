package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/jtaw5649/barforge-registry/internal/api"
	"github.com/jtaw5649/barforge-registry/internal/model"
	grpcserver "github.com/jtaw5649/barforge-registry/internal/server/grpc"
)

var errUnknownCommand = errors.New("unknown command")

type app struct {
	out  io.Writer
	dial func(ctx context.Context, bearer string) (*grpc.ClientConn, error)
}

// call dials with the saved session when one exists, or requires it when auth is set.
func call[Req, Resp any](ctx context.Context, a *app, auth bool, method string, in *Req) (*Resp, error) {
	tok, err := loadToken()
	if err != nil {
		if auth {
			return nil, err
		}
		tok = ""
	}
	cc, err := a.dial(ctx, tok)
	if err != nil {
		return nil, err
	}
	defer cc.Close()
	return grpcserver.Invoke[Req, Resp](ctx, grpcserver.NewClient(cc), method, in)
}

func (a *app) print(v any, err error) error {
	if err != nil {
		return err
	}
	return printJSON(a.out, v)
}

func (a *app) done(err error) error {
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, "ok")
	return err
}

// ------- validators -------

func checkModule(m string) error {
	if err := model.ValidateModuleUUID(m); err != nil {
		return fmt.Errorf("module %q: %w", m, err)
	}
	return nil
}

func checkVersion(v string) error {
	if !model.ValidVersion(v) {
		return fmt.Errorf("version %q is not semver (e.g. 1.2.0)", v)
	}
	return nil
}

func checkRating(r int) error {
	if r < model.MinRating || r > model.MaxRating {
		return fmt.Errorf("rating must be %d..%d", model.MinRating, model.MaxRating)
	}
	return nil
}

func need(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("need -%s", name)
	}
	return nil
}

// ------- dispatch -------

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "version":
		_, err := fmt.Fprintf(a.out, "barforgectl %s (%s)\n", version, buildDate)
		return err

	case "login-token":
		token := fs.String("token", "", "session token")
		expires := fs.String("expires", "", "expiry (RFC3339)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("token", *token); err != nil {
			return err
		}
		exp := time.Now().Add(30 * 24 * time.Hour)
		if *expires != "" {
			t, err := time.Parse(time.RFC3339, *expires)
			if err != nil {
				return fmt.Errorf("bad -expires: %w", err)
			}
			exp = t
		}
		if err := saveToken(*token, exp); err != nil {
			return err
		}
		me, err := call[api.Empty, api.User](ctx, a, true, "GetMe", &api.Empty{})
		if err != nil {
			_ = clearToken()
			return err
		}
		_, err = fmt.Fprintf(a.out, "logged in as %s (%s)\n", me.Username, me.Role)
		return err

	case "logout":
		if _, err := call[api.Empty, api.Empty](ctx, a, true, "Logout", &api.Empty{}); err != nil {
			return err
		}
		return a.done(clearToken())

	case "whoami":
		return a.print(call[api.Empty, api.User](ctx, a, true, "GetMe", &api.Empty{}))

	case "categories":
		return a.print(call[api.Empty, api.CategoryList](ctx, a, false, "ListCategories", &api.Empty{}))

	case "featured":
		return a.print(call[api.Empty, api.ModuleList](ctx, a, false, "ListFeatured", &api.Empty{}))

	case "popular", "recent":
		limit := fs.Int("limit", 20, "max results")
		if err := fs.Parse(args); err != nil {
			return err
		}
		method := map[string]string{"popular": "Popular", "recent": "Recent"}[cmd]
		return a.print(call[api.LimitRequest, api.ModuleList](ctx, a, false, method, &api.LimitRequest{Limit: *limit}))

	case "search":
		req := &api.SearchRequest{}
		fs.StringVar(&req.Query, "q", "", "text")
		fs.StringVar(&req.Category, "category", "", "category id")
		fs.IntVar(&req.Limit, "limit", 20, "max results")
		fs.IntVar(&req.Offset, "offset", 0, "offset")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if req.Category != "" && !model.Category(req.Category).Valid() {
			return fmt.Errorf("unknown category %q (see categories)", req.Category)
		}
		return a.print(call[api.SearchRequest, api.ModuleList](ctx, a, false, "Search", req))

	case "show", "versions", "unlist", "relist":
		m := fs.String("m", "", "module uuid")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := checkModule(*m); err != nil {
			return err
		}
		req := &api.ModuleRequest{ModuleUUID: *m}
		switch cmd {
		case "show":
			return a.print(call[api.ModuleRequest, api.ModuleDetail](ctx, a, false, "GetModule", req))
		case "versions":
			return a.print(call[api.ModuleRequest, api.VersionList](ctx, a, false, "ListVersions", req))
		case "unlist":
			_, err := call[api.ModuleRequest, api.Empty](ctx, a, true, "Unlist", req)
			return a.done(err)
		default:
			_, err := call[api.ModuleRequest, api.Empty](ctx, a, true, "Relist", req)
			return a.done(err)
		}

	case "reviews":
		req := &api.ListReviewsRequest{}
		fs.StringVar(&req.ModuleUUID, "m", "", "module uuid")
		fs.IntVar(&req.Limit, "limit", 20, "max results")
		fs.IntVar(&req.Offset, "offset", 0, "offset")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := checkModule(req.ModuleUUID); err != nil {
			return err
		}
		return a.print(call[api.ListReviewsRequest, api.ReviewList](ctx, a, false, "ListReviews", req))

	case "download":
		req := &api.VersionRequest{}
		fs.StringVar(&req.ModuleUUID, "m", "", "module uuid")
		fs.StringVar(&req.Version, "v", "", "version")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := errors.Join(checkModule(req.ModuleUUID), checkVersion(req.Version)); err != nil {
			return err
		}
		resp, err := call[api.VersionRequest, api.DownloadURLResponse](ctx, a, false, "DownloadURL", req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, resp.URL)
		return err

	case "author":
		user := fs.String("u", "", "username")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("u", *user); err != nil {
			return err
		}
		author, err := call[api.GetAuthorRequest, api.Author](ctx, a, false, "GetAuthor", &api.GetAuthorRequest{Username: *user})
		if err != nil {
			return err
		}
		mods, err := call[api.GetAuthorRequest, api.ModuleList](ctx, a, false, "ListAuthorModules", &api.GetAuthorRequest{Username: *user})
		if err != nil {
			return err
		}
		return printJSON(a.out, map[string]any{"author": author, "modules": mods.Modules})

	case "submit":
		file := fs.String("file", "", "draft JSON file, - for stdin")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("file", *file); err != nil {
			return err
		}
		d, err := readDraft(*file)
		if err != nil {
			return err
		}
		return a.print(call[api.SubmitRequest, api.Submission](ctx, a, true, "Submit", &api.SubmitRequest{Draft: d}))

	case "mine":
		return a.print(call[api.Empty, api.SubmissionList](ctx, a, true, "ListMySubmissions", &api.Empty{}))

	case "pending":
		req := &api.PageRequest{}
		fs.IntVar(&req.Limit, "limit", 20, "max results")
		fs.IntVar(&req.Offset, "offset", 0, "offset")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.print(call[api.PageRequest, api.SubmissionList](ctx, a, true, "ListPending", req))

	case "approve", "reject":
		req := &api.ReviewSubmissionRequest{Decision: cmd}
		fs.StringVar(&req.ID, "id", "", "submission id")
		fs.StringVar(&req.Reason, "reason", "", "rejection reason")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("id", req.ID); err != nil {
			return err
		}
		return a.print(call[api.ReviewSubmissionRequest, api.Submission](ctx, a, true, "ReviewSubmission", req))

	case "publish":
		req := &api.PublishRequest{}
		fs.StringVar(&req.ModuleUUID, "m", "", "module uuid")
		fs.StringVar(&req.Version, "v", "", "version")
		fs.StringVar(&req.PackageKey, "key", "", "package key in the object store")
		changelog := fs.String("changelog", "", "changelog file, - for stdin")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := errors.Join(checkModule(req.ModuleUUID), checkVersion(req.Version), need("key", req.PackageKey)); err != nil {
			return err
		}
		if *changelog != "" {
			b, err := readAll(*changelog)
			if err != nil {
				return err
			}
			req.Changelog = string(b)
		}
		return a.print(call[api.PublishRequest, api.Version](ctx, a, true, "Publish", req))

	case "review":
		req := &api.UpsertReviewRequest{}
		fs.StringVar(&req.ModuleUUID, "m", "", "module uuid")
		fs.IntVar(&req.Rating, "rating", 0, "1..5")
		fs.StringVar(&req.Title, "title", "", "title")
		fs.StringVar(&req.Body, "body", "", "body")
		del := fs.Bool("delete", false, "delete your review instead")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := checkModule(req.ModuleUUID); err != nil {
			return err
		}
		if *del {
			_, err := call[api.DeleteReviewRequest, api.Empty](ctx, a, true, "DeleteReview",
				&api.DeleteReviewRequest{ModuleUUID: req.ModuleUUID})
			return a.done(err)
		}
		if err := checkRating(req.Rating); err != nil {
			return err
		}
		return a.print(call[api.UpsertReviewRequest, api.Review](ctx, a, true, "UpsertReview", req))

	case "feature":
		m := fs.String("m", "", "module uuid")
		pos := fs.Int("pos", 0, "position, from 1")
		unfeature := fs.Bool("clear", false, "remove from featured")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := checkModule(*m); err != nil {
			return err
		}
		if *unfeature {
			_, err := call[api.ModuleRequest, api.Empty](ctx, a, true, "ClearFeatured", &api.ModuleRequest{ModuleUUID: *m})
			return a.done(err)
		}
		if *pos < 1 {
			return errors.New("need -pos >= 1 or -clear")
		}
		_, err := call[api.SetFeaturedRequest, api.Empty](ctx, a, true, "SetFeatured",
			&api.SetFeaturedRequest{ModuleUUID: *m, Position: *pos})
		return a.done(err)

	case "role":
		req := &api.SetRoleRequest{}
		fs.StringVar(&req.UserID, "user", "", "user id")
		fs.StringVar(&req.Role, "role", "", "user|moderator|admin")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("user", req.UserID); err != nil {
			return err
		}
		if !model.Role(req.Role).Valid() {
			return fmt.Errorf("unknown role %q", req.Role)
		}
		_, err := call[api.SetRoleRequest, api.Empty](ctx, a, true, "SetRole", req)
		return a.done(err)

	case "verify":
		user := fs.String("user", "", "user id")
		off := fs.Bool("off", false, "clear the verified mark")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := need("user", *user); err != nil {
			return err
		}
		_, err := call[api.SetVerifiedRequest, api.Empty](ctx, a, true, "SetVerified",
			&api.SetVerifiedRequest{UserID: *user, Verified: !*off})
		return a.done(err)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

// readDraft decodes a draft file, rejecting unknown fields so typos surface early.
func readDraft(path string) (api.Draft, error) {
	b, err := readAll(path)
	if err != nil {
		return api.Draft{}, err
	}
	var d api.Draft
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return api.Draft{}, fmt.Errorf("draft %s: %w", path, err)
	}
	if err := checkModule(d.ModuleUUID); err != nil {
		return api.Draft{}, err
	}
	if err := checkVersion(d.Version); err != nil {
		return api.Draft{}, err
	}
	return d, nil
}
