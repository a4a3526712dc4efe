package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/model"
	"github.com/jtaw5649/barforge-registry/internal/repository/memory"
)

// tickingClock returns a time source that advances one millisecond per call.
func tickingClock() func() time.Time {
	var (
		mu  sync.Mutex
		cur = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

func newUser(t *testing.T, st *memory.Store, name string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		ID:         uuid.Must(uuid.NewV4()),
		ExternalID: "test:" + name,
		Username:   name,
		Role:       role,
	}
	if err := st.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func draft(moduleUUID string) model.ModuleDraft {
	return model.ModuleDraft{
		ModuleUUID:  moduleUUID,
		Name:        "Module " + moduleUUID,
		Description: "does things",
		Category:    model.CategorySystem,
		Version:     "1.0.0",
		RepoURL:     "https://github.com/octo/" + moduleUUID,
		PackageKey:  "pkg/" + moduleUUID + "/1.0.0.tar.gz",
	}
}

// publishModule runs a draft through submission and approval.
func publishModule(t *testing.T, st *memory.Store, owner *model.User, moduleUUID string) {
	t.Helper()
	publishDraft(t, st, owner, draft(moduleUUID))
}

func publishDraft(t *testing.T, st *memory.Store, owner *model.User, d model.ModuleDraft) {
	t.Helper()
	ctx := context.Background()
	sub := &model.Submission{ID: uuid.Must(uuid.NewV4()), Draft: d, SubmitterID: owner.ID}
	if err := st.Submissions().Create(ctx, sub); err != nil {
		t.Fatalf("submit %s: %v", d.ModuleUUID, err)
	}
	if _, err := st.Submissions().Approve(ctx, sub.ID, uuid.Must(uuid.NewV4())); err != nil {
		t.Fatalf("approve %s: %v", d.ModuleUUID, err)
	}
}
