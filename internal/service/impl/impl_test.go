package core

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/gateway"
	"github.com/sidereusnuntius/fedwiki/internal/initialization"
	"github.com/sidereusnuntius/fedwiki/internal/mocks"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	"github.com/sidereusnuntius/fedwiki/internal/testutil"
	"go.uber.org/mock/gomock"
)

var (
	ctx    = context.Background()
	fx     *testutil.Fixture
	engine *edit.Engine
	bob    domain.Person
)

func TestMain(m *testing.M) {
	var err error
	if fx, err = testutil.New(ctx, "service", "../../../migrations"); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	engine = edit.New(fx.DB, fx.Local.ApID)

	// Alice's instance follows us, so every federated change is delivered to its shared inbox.
	if _, err = fx.DB.Follow(ctx, domain.Follow{
		Follower:       fx.Alice.ApID,
		FollowerInbox:  fx.Alice.Inbox,
		FollowerShared: fx.Alice.SharedInbox,
		InstanceID:     fx.Local.ID,
	}); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}

	if bob, err = initialization.CreateLocalPerson(ctx, fx.DB, fx.Config, fx.Local, "bob", false); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	m.Run()
}

func newService(t *testing.T) (service.Service, *mocks.MockOutbox) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	resolver := objects.New(fx.State, engine, mocks.NewMockFetcher(ctrl))
	return New(fx.State, engine, gateway.New(fx.State, resolver, outbox)), outbox
}

// expectAnnouncement expects deliveries to the shared inbox of Alice's instance and records their kinds.
func expectAnnouncement(t *testing.T, outbox *mocks.MockOutbox, kinds *[]gateway.Kind) *gomock.Call {
	return outbox.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, body []byte, inbox *url.URL) error {
			if inbox.String() != fx.Remote.SharedInbox.String() {
				t.Errorf("delivered to %s", inbox)
			}
			a, err := gateway.Decode(ctx, body)
			if err != nil {
				t.Errorf("undecodable delivery: %s", err)
				return nil
			}
			*kinds = append(*kinds, a.Kind())
			return nil
		})
}

func TestCreateArticle(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).Times(1)

	a, err := s.CreateArticle(ctx, "  Service Article ", "some text\n", "first   version", fx.Admin.ID)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if a.Title != "Service_Article" || a.Text != "some text\n" || !a.Approved {
		t.Errorf("unexpected article %+v", a)
	}
	if len(kinds) != 1 || kinds[0] != gateway.KindCreate {
		t.Errorf("expected one Create, got %v", kinds)
	}

	got, err := s.GetLocalArticle(ctx, "Service Article")
	if err != nil || got.ID != a.ID {
		t.Errorf("lookup by title failed: %v", err)
	}

	cases := []struct {
		name  string
		title string
		err   error
	}{
		{name: "Duplicate", title: "Service_Article", err: db.ErrConflict},
		{name: "ReservedCharacter", title: "a/b", err: service.ErrInvalidInput},
		{name: "Empty", title: "  ", err: service.ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := s.CreateArticle(ctx, c.title, "x", "", fx.Admin.ID); !errors.Is(err, c.err) {
				t.Errorf("expected %v, got %v", c.err, err)
			}
		})
	}

	if _, err = s.CreateArticle(ctx, "By_Ghost", "x", "", 0); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden for an unknown author, got %v", err)
	}
}

func TestConcurrentEditScenarios(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	base := "Title\n\nBody\n\nEnd\n"
	a, err := s.CreateArticle(ctx, "Scenario", base, "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	v0 := a.Head

	// A adds an intro.
	first, err := s.EditArticle(ctx, a.ID, v0, "Title with intro\n\nBody\n\nEnd\n", "add intro", fx.Admin.ID)
	if err != nil || first.Edit == nil {
		t.Fatalf("first edit not accepted: %v", err)
	}
	v1 := first.Article.Head

	// B still holds v0 and touches another line: merged.
	second, err := s.EditArticle(ctx, a.ID, v0, "Title\n\nBody\n\nEnd with references\n", "add references", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Edit == nil || !second.Merged {
		t.Fatalf("expected a merged edit, got %+v", second)
	}
	if want := "Title with intro\n\nBody\n\nEnd with references\n"; second.Article.Text != want {
		t.Errorf("merged text %q, want %q", second.Article.Text, want)
	}
	v2 := second.Article.Head

	// B, still on v0, rewrites the line A changed: conflict.
	third, err := s.EditArticle(ctx, a.ID, v0, "Another title\n\nBody\n\nEnd\n", "retitle", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if third.Conflict == nil || third.Edit != nil {
		t.Fatalf("expected a conflict, got %+v", third)
	}
	if third.Conflict.BasedOn != v0 || third.Conflict.Actual != v2 {
		t.Errorf("conflict recorded against %s/%s", third.Conflict.BasedOn.Short(), third.Conflict.Actual.Short())
	}

	pending, err := s.ConflictList(ctx, db.EditFilter{ArticleID: a.ID})
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending conflict, got %d (%v)", len(pending), err)
	}
	mine, err := s.ConflictList(ctx, db.EditFilter{PersonID: bob.ID})
	if err != nil || len(mine) == 0 {
		t.Errorf("conflict missing from the author's list: %v", err)
	}

	// Only the author or an admin may settle it.
	if _, err = s.ResolveConflict(ctx, pending[0].ID, service.Resolution{Discard: true}, fx.Admin.ID); err != nil {
		t.Fatalf("discard: %s", err)
	}
	after, err := s.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Head != v2 || v2 == v1 {
		t.Errorf("discard moved the head")
	}
	if pending, _ = s.ConflictList(ctx, db.EditFilter{ArticleID: a.ID}); len(pending) != 0 {
		t.Errorf("conflict still pending after discard")
	}

	edits, err := s.EditList(ctx, db.EditFilter{ArticleID: a.ID})
	if err != nil || len(edits) != 3 {
		t.Errorf("expected 3 accepted edits, got %d (%v)", len(edits), err)
	}
	if _, err = s.EditList(ctx, db.EditFilter{}); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an empty filter, got %v", err)
	}

	// Every accepted change was announced: the Create and two Updates.
	if len(kinds) != 3 {
		t.Errorf("expected 3 announcements, got %v", kinds)
	}
}

func TestResolveConflictBySubmission(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	a, err := s.CreateArticle(ctx, "Rebase", "one\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	v0 := a.Head
	if _, err = s.EditArticle(ctx, a.ID, v0, "uno\n", "", fx.Admin.ID); err != nil {
		t.Fatal(err)
	}
	o, err := s.EditArticle(ctx, a.ID, v0, "eins\n", "", bob.ID)
	if err != nil || o.Conflict == nil {
		t.Fatalf("expected a conflict: %v", err)
	}

	if _, err = s.ResolveConflict(ctx, o.Conflict.ID, service.Resolution{Discard: true}, fx.Alice.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden for a remote person, got %v", err)
	}

	resolved, err := s.ResolveConflict(ctx, o.Conflict.ID, service.Resolution{
		BasedOn: o.Conflict.Actual,
		Patch:   diff.FindPatches("uno\n", "eins\n"),
		Summary: "rebased",
	}, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Edit == nil || resolved.Article.Text != "eins\n" {
		t.Errorf("unexpected resolution %+v", resolved)
	}
	if pending, _ := s.ConflictList(ctx, db.EditFilter{ArticleID: a.ID}); len(pending) != 0 {
		t.Errorf("conflict still pending after resolution")
	}
}

func TestEmptyPatchIsIdempotent(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).Times(1)

	a, err := s.CreateArticle(ctx, "Idempotent", "same\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	o, err := s.SubmitEdit(ctx, a.ID, a.Head, "", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if o.Edit != nil || o.Conflict != nil || o.Article.Head != a.Head {
		t.Errorf("empty patch changed something: %+v", o)
	}

	if _, err = s.SubmitEdit(ctx, a.ID, domain.VersionOf("never existed"), "", "", fx.Admin.ID); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an unknown base, got %v", err)
	}
}

func TestProtectAndApprove(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	fx.Config.ArticleApprovalRequired = true
	defer func() { fx.Config.ArticleApprovalRequired = false }()

	a, err := s.CreateArticle(ctx, "Pending_Review", "draft\n", "", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Approved {
		t.Fatal("article by a non-admin approved on creation")
	}
	if _, err = s.EditArticle(ctx, a.ID, a.Head, "draft two\n", "", bob.ID); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 0 {
		t.Fatalf("unapproved article was announced: %v", kinds)
	}

	if _, err = s.Approve(ctx, a.ID, bob.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if a, err = s.Approve(ctx, a.ID, fx.Admin.ID); err != nil || !a.Approved {
		t.Fatalf("approve: %v", err)
	}
	if len(kinds) != 1 || kinds[0] != gateway.KindCreate {
		t.Errorf("approval should announce a Create, got %v", kinds)
	}

	if err = s.Protect(ctx, a.ID, true, bob.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err = s.Protect(ctx, a.ID, true, fx.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err = s.EditArticle(ctx, a.ID, a.Head, "vandalised\n", "", bob.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden on a protected article, got %v", err)
	}
	if _, err = s.EditArticle(ctx, a.ID, a.Head, "reviewed\n", "", fx.Admin.ID); err != nil {
		t.Errorf("admin edit of a protected article: %v", err)
	}

	if err = s.DeleteArticle(ctx, a.ID, bob.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err = s.DeleteArticle(ctx, a.ID, fx.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err = s.GetArticle(ctx, a.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestForkArticle(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	source, err := s.CreateArticle(ctx, "Fork_Source", "shared\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	fork, err := s.ForkArticle(ctx, source.ID, "Fork Copy", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fork.Title != "Fork_Copy" || fork.Head != source.Head || fork.ID == source.ID {
		t.Fatalf("unexpected fork %+v", fork)
	}

	if _, err = s.EditArticle(ctx, fork.ID, fork.Head, "shared\nforked\n", "", bob.ID); err != nil {
		t.Fatal(err)
	}
	after, err := s.GetArticle(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Head != source.Head {
		t.Error("editing the fork moved the source")
	}

	if _, err = s.ForkArticle(ctx, source.ID, "", bob.ID); !errors.Is(err, db.ErrConflict) {
		t.Errorf("forking onto an existing title should conflict, got %v", err)
	}
}

func TestForkFollowsApprovalRule(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	source, err := s.CreateArticle(ctx, "Reviewed_Source", "vetted\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}

	fx.Config.ArticleApprovalRequired = true
	defer func() { fx.Config.ArticleApprovalRequired = false }()
	kinds = nil

	fork, err := s.ForkArticle(ctx, source.ID, "Unreviewed_Fork", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fork.Approved {
		t.Error("fork by a non-admin approved while approval is required")
	}
	if len(kinds) != 0 {
		t.Errorf("unapproved fork was announced: %v", kinds)
	}

	fork, err = s.ForkArticle(ctx, source.ID, "Admin_Fork", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !fork.Approved {
		t.Error("fork by an admin should be approved")
	}
	if len(kinds) != 1 || kinds[0] != gateway.KindCreate {
		t.Errorf("approved fork should announce a Create, got %v", kinds)
	}
}

func TestComments(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).AnyTimes()

	a, err := s.CreateArticle(ctx, "Discussed", "topic\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.CreateArticle(ctx, "Undiscussed", "quiet\n", "", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}

	top, err := s.CreateComment(ctx, a.ID, 0, "first", bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := s.CreateComment(ctx, a.ID, top.ID, "second", fx.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reply.ParentID != top.ID || reply.Text != "second" {
		t.Errorf("unexpected reply %+v", reply)
	}

	if _, err = s.CreateComment(ctx, other.ID, top.ID, "misplaced", bob.ID); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a parent on another article, got %v", err)
	}
	if _, err = s.CreateComment(ctx, a.ID, 0, "   ", bob.ID); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an empty comment, got %v", err)
	}

	o, err := s.EditComment(ctx, top.ID, top.Head, "first, edited", bob.ID)
	if err != nil || o.Edit == nil {
		t.Fatalf("edit comment: %v", err)
	}
	if _, err = s.EditComment(ctx, reply.ID, reply.Head, "hijacked", bob.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden editing another's comment, got %v", err)
	}

	comments, err := s.ListComments(ctx, a.ID)
	if err != nil || len(comments) != 2 {
		t.Errorf("expected 2 comments, got %d (%v)", len(comments), err)
	}

	// Two articles, two comments and one comment edit.
	creates, updates := 0, 0
	for _, k := range kinds {
		switch k {
		case gateway.KindCreate:
			creates++
		case gateway.KindUpdate:
			updates++
		}
	}
	if creates != 4 || updates != 1 {
		t.Errorf("expected 4 Creates and 1 Update, got %v", kinds)
	}
}

func TestFollow(t *testing.T) {
	s, outbox := newService(t)
	var kinds []gateway.Kind
	expectAnnouncement(t, outbox, &kinds).Times(2)

	f, err := s.Follow(ctx, fx.Local.ApID, fx.Remote.ApID)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Pending || f.InstanceID != fx.Remote.ID {
		t.Errorf("unexpected follow %+v", f)
	}

	if _, err = s.Follow(ctx, fx.Alice.ApID, fx.Local.ApID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden for a remote follower, got %v", err)
	}
	if _, err = s.Follow(ctx, fx.Local.ApID, fx.Local.ApID); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a self follow, got %v", err)
	}

	if err = s.AcceptFollow(ctx, fx.Alice.ApID); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0] != gateway.KindFollow || kinds[1] != gateway.KindAccept {
		t.Errorf("expected a Follow then an Accept, got %v", kinds)
	}

	followers, err := s.Followers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0].Follower.String() != fx.Alice.ApID.String() {
		t.Errorf("unexpected followers %+v", followers)
	}
}

func TestCreatePerson(t *testing.T) {
	s, _ := newService(t)
	cases := []struct {
		name     string
		username string
		err      error
	}{
		{name: "Valid", username: "Carol"},
		{name: "Duplicate", username: "carol", err: db.ErrConflict},
		{name: "Ghost", username: domain.GhostUsername, err: service.ErrInvalidInput},
		{name: "Invalid", username: "no spaces", err: service.ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := s.CreatePerson(ctx, c.username, false)
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Errorf("expected %v, got %v", c.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Username != strings.ToLower(c.username) || !strings.HasSuffix(p.ApID.String(), "/user/carol") {
				t.Errorf("unexpected person %+v", p)
			}
		})
	}
}
