package edit_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/db/impl"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/initialization"
)

var (
	ctx    = context.Background()
	DB     db.DB
	engine *edit.Engine
	local  domain.Instance
	admin  domain.Person
	bob    domain.Person
	carol  domain.Person
)

func TestMain(m *testing.M) {
	d, err := initialization.OpenDB("file:edit?mode=memory&cache=shared&_fk=1")
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	if err = initialization.SetupDB(d, "../../migrations", "edit"); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	DB = impl.New(d)

	u, _ := url.Parse("https://edit.test")
	cfg := &config.Configuration{
		Name:          "Edit test",
		Domain:        "edit.test",
		Url:           u,
		RsaKeySize:    1024,
		AdminUsername: "admin",
	}

	local, err = initialization.Bootstrap(ctx, DB, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	if admin, err = DB.GetLocalPerson(ctx, "admin"); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	if bob, err = initialization.CreateLocalPerson(ctx, DB, cfg, local, "bob", false); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	if carol, err = initialization.CreateLocalPerson(ctx, DB, cfg, local, "carol", false); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}

	engine = edit.New(DB, cfg.Url)
	m.Run()
}

func newArticle(t *testing.T, title, text string) domain.Article {
	t.Helper()
	a, _, err := engine.CreateArticle(ctx, edit.NewArticle{
		Instance: local,
		Title:    title,
		Text:     text,
		Summary:  "create",
		Author:   admin,
		Approved: true,
	})
	if err != nil {
		t.Fatalf("creating article: %s", err)
	}
	return a
}

func submit(t *testing.T, target domain.Target, author domain.Person, basedOn domain.EditVersion, from, to string) edit.Result {
	t.Helper()
	r, err := engine.Submit(ctx, edit.Submission{
		Target:  target,
		BasedOn: basedOn,
		Patch:   diff.FindPatches(from, to),
		Summary: "test",
		Author:  author,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return r
}

func article(t *testing.T, id int64) domain.Article {
	t.Helper()
	a, err := DB.GetArticleByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return a
}

func TestMainPage(t *testing.T) {
	page, err := engine.ArticleByTitle(ctx, local, initialization.MainPageTitle)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !page.Protected || !page.Approved {
		t.Errorf("expected main page to be protected and approved: %+v", page)
	}
	if !strings.HasPrefix(page.Text, "Welcome") {
		t.Errorf("unexpected main page text %q", page.Text)
	}

	edits, err := DB.ListEdits(ctx, domain.ArticleTarget(page.ID))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(edits) != 1 || edits[0].Summary != "Default main page" {
		t.Fatalf("unexpected main page history: %+v", edits)
	}

	_, err = engine.Submit(ctx, edit.Submission{
		Target:  domain.ArticleTarget(page.ID),
		BasedOn: page.Head,
		Patch:   diff.FindPatches(page.Text, page.Text+"vandalism\n"),
		Author:  bob,
	})
	if !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	if _, err = DB.GetLocalPerson(ctx, domain.GhostUsername); err != nil {
		t.Errorf("ghost person missing: %s", err)
	}
}

func TestReplayReproducesText(t *testing.T) {
	a := newArticle(t, "Replay", "first\n")
	texts := []string{"first\n", "first\nsecond\n", "zeroth\nfirst\nsecond\n", "zeroth\nsecond\n"}
	for i := 1; i < len(texts); i++ {
		r := submit(t, domain.ArticleTarget(a.ID), bob, domain.VersionOf(texts[i-1]), texts[i-1], texts[i])
		if r.Edit == nil || r.Merged {
			t.Fatalf("expected a fast path edit, got %+v", r)
		}
	}

	text, err := engine.Replay(ctx, domain.ArticleTarget(a.ID))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	a = article(t, a.ID)
	if text != a.Text || a.Text != texts[len(texts)-1] {
		t.Errorf("replay mismatch:\n%s", cmp.Diff(a.Text, text))
	}
	if a.Head != domain.VersionOf(a.Text) {
		t.Errorf("head %s is not the version of the text", a.Head.Short())
	}

	old, err := engine.TextAt(ctx, domain.ArticleTarget(a.ID), domain.VersionOf(texts[1]))
	if err != nil || old != texts[1] {
		t.Errorf("TextAt returned %q, %v", old, err)
	}
}

func TestEmptyPatchIsIdempotent(t *testing.T) {
	a := newArticle(t, "Idempotent", "stable\n")
	before, _ := DB.ListEdits(ctx, domain.ArticleTarget(a.ID))

	r := submit(t, domain.ArticleTarget(a.ID), bob, a.Head, a.Text, a.Text)
	if !r.Unchanged() || r.Head != a.Head {
		t.Errorf("expected unchanged result at %s, got %+v", a.Head.Short(), r)
	}

	after, _ := DB.ListEdits(ctx, domain.ArticleTarget(a.ID))
	if len(after) != len(before) {
		t.Errorf("expected %d edits, got %d", len(before), len(after))
	}
}

func TestConcurrentEditsMerge(t *testing.T) {
	a := newArticle(t, "Merge", "")
	if a.Head != domain.InitialVersion {
		t.Fatalf("expected the empty version, got %s", a.Head.Short())
	}
	target := domain.ArticleTarget(a.ID)

	first := submit(t, target, bob, domain.InitialVersion, "", "Intro\n")
	if first.Edit == nil {
		t.Fatalf("expected an edit, got %+v", first)
	}

	second := submit(t, target, carol, domain.InitialVersion, "", "References\n")
	if second.Edit == nil || !second.Merged {
		t.Fatalf("expected a merged edit, got %+v", second)
	}
	if second.Edit.PreviousVersion != first.Head {
		t.Errorf("merged edit should follow %s, follows %s", first.Head.Short(), second.Edit.PreviousVersion.Short())
	}

	a = article(t, a.ID)
	if a.Text != "Intro\nReferences\n" {
		t.Errorf("unexpected merged text %q", a.Text)
	}
}

func TestConflictAndDiscard(t *testing.T) {
	a := newArticle(t, "Conflict", "the line\n")
	v0 := a.Head
	target := domain.ArticleTarget(a.ID)

	v1 := submit(t, target, bob, v0, "the line\n", "bob's line\n").Head

	r := submit(t, target, carol, v0, "the line\n", "carol's line\n")
	if r.Conflict == nil {
		t.Fatalf("expected a conflict, got %+v", r)
	}
	if r.Conflict.BasedOn != v0 || r.Conflict.Actual != v1 {
		t.Errorf("conflict based on %s with actual %s", r.Conflict.BasedOn.Short(), r.Conflict.Actual.Short())
	}

	conflicts, err := DB.ListConflicts(ctx, db.EditFilter{ArticleID: a.ID, PersonID: carol.ID})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != r.Conflict.ID {
		t.Fatalf("expected the conflict to be listed, got %+v", conflicts)
	}

	if err = engine.Discard(ctx, r.Conflict.ID, bob); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another person's conflict, got %v", err)
	}
	if err = engine.Discard(ctx, r.Conflict.ID, carol); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if a = article(t, a.ID); a.Head != v1 {
		t.Errorf("discard moved the head to %s", a.Head.Short())
	}
	conflicts, _ = DB.ListConflicts(ctx, db.EditFilter{ArticleID: a.ID})
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %d", len(conflicts))
	}
}

func TestResolveConflict(t *testing.T) {
	a := newArticle(t, "Resolve", "the line\n")
	v0 := a.Head
	target := domain.ArticleTarget(a.ID)

	v1 := submit(t, target, bob, v0, "the line\n", "bob's line\n").Head
	r := submit(t, target, carol, v0, "the line\n", "carol's line\n")
	if r.Conflict == nil {
		t.Fatalf("expected a conflict, got %+v", r)
	}

	resolved, err := engine.Resolve(ctx, r.Conflict.ID, carol, v1, diff.FindPatches("bob's line\n", "bob's and carol's line\n"), "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if resolved.Edit == nil || resolved.Edit.Summary != "test" {
		t.Fatalf("expected an edit keeping the conflict's summary, got %+v", resolved)
	}

	if _, err = DB.GetConflict(ctx, r.Conflict.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected the conflict to be gone, got %v", err)
	}
	if a = article(t, a.ID); a.Text != "bob's and carol's line\n" {
		t.Errorf("unexpected text %q", a.Text)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	a := newArticle(t, "Race", "contested\n")
	target := domain.ArticleTarget(a.ID)

	const n = 8
	results := make([]edit.Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.Submit(ctx, edit.Submission{
				Target:  target,
				BasedOn: a.Head,
				Patch:   diff.FindPatches(a.Text, fmt.Sprintf("variant %d\n", i)),
				Author:  bob,
			})
		}()
	}
	wg.Wait()

	var accepted, conflicts int
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("unexpected error: %s", errs[i])
		}
		if r.Edit != nil {
			accepted++
		}
		if r.Conflict != nil {
			conflicts++
		}
	}
	if accepted != 1 || conflicts != n-1 {
		t.Errorf("expected 1 edit and %d conflicts, got %d and %d", n-1, accepted, conflicts)
	}

	edits, _ := DB.ListEdits(ctx, target)
	var fromHead int
	for _, e := range edits {
		if e.PreviousVersion == a.Head {
			fromHead++
		}
	}
	if fromHead != 1 {
		t.Errorf("expected one edit on top of %s, got %d", a.Head.Short(), fromHead)
	}
}

func TestDuplicateRemoteEdit(t *testing.T) {
	a := newArticle(t, "Duplicate", "one\n")
	target := domain.ArticleTarget(a.ID)
	apID, _ := url.Parse("https://remote.test/edit/1")

	s := edit.Submission{
		Target:  target,
		BasedOn: a.Head,
		Patch:   diff.FindPatches("one\n", "one\ntwo\n"),
		Author:  bob,
		ApID:    apID,
	}
	first, err := engine.Submit(ctx, s)
	if err != nil || first.Edit == nil {
		t.Fatalf("expected an edit, got %+v, %v", first, err)
	}
	if first.Edit.Local {
		t.Error("a received edit must not be local")
	}

	second, err := engine.Submit(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !second.Unchanged() || second.Head != first.Head {
		t.Errorf("expected the duplicate to be ignored, got %+v", second)
	}

	edits, _ := DB.ListEdits(ctx, target)
	if len(edits) != 2 {
		t.Errorf("expected 2 edits, got %d", len(edits))
	}
}

func TestDuplicateMergedRemoteEdit(t *testing.T) {
	a := newArticle(t, "Duplicate_Merge", "a\nb\nc\n")
	target := domain.ArticleTarget(a.ID)
	base := a.Head
	submit(t, target, bob, base, "a\nb\nc\n", "A\nb\nc\n")

	apID, _ := url.Parse("https://remote.test/edit/merged-1")
	s := edit.Submission{
		Target:  target,
		BasedOn: base,
		Patch:   diff.FindPatches("a\nb\nc\n", "a\nB\nc\n"),
		Author:  carol,
		ApID:    apID,
	}
	first, err := engine.Submit(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if first.Edit == nil || !first.Merged {
		t.Fatalf("expected a merged edit, got %+v", first)
	}
	if first.Edit.ApID.String() == apID.String() || first.Edit.Source.String() != apID.String() {
		t.Errorf("merged edit stored as %s from %v", first.Edit.ApID, first.Edit.Source)
	}

	second, err := engine.Submit(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Unchanged() || second.Conflict != nil || second.Head != first.Head {
		t.Errorf("expected the redelivery to be ignored, got %+v", second)
	}

	conflicts, err := DB.ListConflicts(ctx, db.EditFilter{ArticleID: a.ID})
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Errorf("redelivery recorded %d conflicts", len(conflicts))
	}
	if text := article(t, a.ID).Text; text != "A\nB\nc\n" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestSubmissionErrors(t *testing.T) {
	a := newArticle(t, "Errors", "text\n")
	target := domain.ArticleTarget(a.ID)

	cases := []struct {
		name     string
		s        edit.Submission
		expected error
	}{
		{
			name:     "unknown base",
			s:        edit.Submission{Target: target, BasedOn: domain.VersionOf("never"), Patch: diff.FindPatches("never", "x"), Author: bob},
			expected: edit.ErrUnknownVersion,
		},
		{
			name:     "garbage patch",
			s:        edit.Submission{Target: target, BasedOn: a.Head, Patch: "not a patch", Author: bob},
			expected: edit.ErrInvalidPatch,
		},
		{
			name:     "patch for other text",
			s:        edit.Submission{Target: target, BasedOn: a.Head, Patch: diff.FindPatches("completely different words", "x"), Author: bob},
			expected: edit.ErrInvalidPatch,
		},
		{
			name:     "missing article",
			s:        edit.Submission{Target: domain.ArticleTarget(-1), BasedOn: a.Head, Author: bob},
			expected: db.ErrNotFound,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := engine.Submit(ctx, c.s)
			if !errors.Is(err, c.expected) {
				t.Errorf("expected %v, got %v", c.expected, err)
			}
		})
	}

	if after := article(t, a.ID); after.Head != a.Head {
		t.Error("failed submissions moved the head")
	}
}

func TestProtection(t *testing.T) {
	a := newArticle(t, "Protected", "guarded\n")
	target := domain.ArticleTarget(a.ID)

	if err := engine.Protect(ctx, a.ID, bob, true); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := engine.Protect(ctx, a.ID, admin, true); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	s := edit.Submission{Target: target, BasedOn: a.Head, Patch: diff.FindPatches("guarded\n", "changed\n"), Author: bob}
	if _, err := engine.Submit(ctx, s); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	s.Authoritative = true
	r, err := engine.Submit(ctx, s)
	if err != nil || r.Edit == nil {
		t.Errorf("expected authoritative edit to pass, got %+v, %v", r, err)
	}
}

func TestForkIsIndependent(t *testing.T) {
	source := newArticle(t, "Source", "shared history\n")
	submit(t, domain.ArticleTarget(source.ID), bob, source.Head, "shared history\n", "shared history\nmore\n")
	source = article(t, source.ID)

	fork, err := engine.Fork(ctx, source.ID, local, "Source_fork", true)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if fork.Text != source.Text || fork.Head != source.Head {
		t.Fatalf("fork does not start at the source's head")
	}

	sourceEdits, _ := DB.ListEdits(ctx, domain.ArticleTarget(source.ID))
	forkEdits, _ := DB.ListEdits(ctx, domain.ArticleTarget(fork.ID))
	if len(forkEdits) != len(sourceEdits) {
		t.Fatalf("expected %d copied edits, got %d", len(sourceEdits), len(forkEdits))
	}
	for i := range forkEdits {
		if forkEdits[i].ApID.String() == sourceEdits[i].ApID.String() {
			t.Errorf("edit %d shares its id with the source", i)
		}
		if forkEdits[i].Version != sourceEdits[i].Version {
			t.Errorf("edit %d has a different version", i)
		}
	}

	submit(t, domain.ArticleTarget(source.ID), bob, source.Head, source.Text, "rewritten\n")
	if after := article(t, fork.ID); after.Text != fork.Text || after.Head != fork.Head {
		t.Error("editing the source changed the fork")
	}

	submit(t, domain.ArticleTarget(fork.ID), bob, fork.Head, fork.Text, "forked\n")
	if after := article(t, source.ID); after.Text != "rewritten\n" {
		t.Error("editing the fork changed the source")
	}
}

func TestComments(t *testing.T) {
	a := newArticle(t, "Discussed", "topic\n")

	comment, r, err := engine.CreateComment(ctx, edit.NewComment{ArticleID: a.ID, Author: bob, Text: "I disagree\n"})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if r.Edit == nil || comment.Text != "I disagree\n" || comment.Head != domain.VersionOf(comment.Text) {
		t.Fatalf("unexpected comment %+v", comment)
	}

	reply, _, err := engine.CreateComment(ctx, edit.NewComment{ArticleID: a.ID, ParentID: comment.ID, Author: carol, Text: "why?\n"})
	if err != nil || reply.ParentID != comment.ID {
		t.Fatalf("unexpected reply %+v, %v", reply, err)
	}

	target := domain.CommentTarget(a.ID, comment.ID)
	s := edit.Submission{Target: target, BasedOn: comment.Head, Patch: diff.FindPatches(comment.Text, "I agree\n"), Author: carol}
	if _, err = engine.Submit(ctx, s); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	s.Author = bob
	if _, err = engine.Submit(ctx, s); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	articleEdits, _ := DB.ListEdits(ctx, domain.ArticleTarget(a.ID))
	if len(articleEdits) != 1 {
		t.Errorf("comment edits leaked into the article history: %d edits", len(articleEdits))
	}
	if after := article(t, a.ID); after.Head != a.Head {
		t.Error("comment edit moved the article head")
	}
}

func TestDelete(t *testing.T) {
	a := newArticle(t, "Doomed", "bye\n")
	if err := engine.Delete(ctx, a.ID, bob); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := engine.Delete(ctx, a.ID, admin); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := DB.GetArticleByID(ctx, a.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRealign(t *testing.T) {
	remote, _ := url.Parse("https://remote.test/article/Mirrored")
	a, _, err := engine.CreateArticle(ctx, edit.NewArticle{
		Instance: domain.Instance{ID: local.ID, ApID: local.ApID},
		ApID:     remote,
		Title:    "Mirrored",
		Text:     "diverged locally\n",
		Author:   bob,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	e1, _ := url.Parse("https://remote.test/edit/1")
	e2, _ := url.Parse("https://remote.test/edit/2")
	history := []domain.Edit{
		{ApID: e1, AuthorID: bob.ID, Patch: diff.FindPatches("", "home\n"), PreviousVersion: domain.InitialVersion, Version: domain.VersionOf("home\n")},
		{ApID: e2, AuthorID: bob.ID, Patch: diff.FindPatches("home\n", "home text\n"), PreviousVersion: domain.VersionOf("home\n"), Version: domain.VersionOf("home text\n")},
	}

	a, err = engine.Realign(ctx, a.ID, history)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if a.Text != "home text\n" || a.Head != domain.VersionOf("home text\n") {
		t.Errorf("unexpected article state %q", a.Text)
	}

	broken := []domain.Edit{history[1]}
	if _, err = engine.Realign(ctx, a.ID, broken); !errors.Is(err, edit.ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}

	if _, err = engine.Realign(ctx, newArticle(t, "Local_only", "x\n").ID, nil); !errors.Is(err, edit.ErrForbidden) {
		t.Errorf("expected ErrForbidden for a local article, got %v", err)
	}
}
