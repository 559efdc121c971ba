// Package testutil builds the database, local instance and remote peer that federation tests run against.
package testutil

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/db/impl"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/initialization"
	"github.com/sidereusnuntius/fedwiki/internal/state"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

const (
	LocalURL  = "https://local.test"
	RemoteURL = "https://remote.test"
)

type Fixture struct {
	DB     db.DB
	Config *config.Configuration
	State  *state.State
	Local  domain.Instance
	Admin  domain.Person
	// Remote is a peer known in advance, so its key can be checked without fetching it.
	Remote    domain.Instance
	RemoteKey *rsa.PrivateKey
	// Alice is a person of Remote.
	Alice domain.Person
}

// New sets up a fresh in-memory database named name, with migrations read from migrations.
func New(ctx context.Context, name, migrations string) (*Fixture, error) {
	d, err := initialization.OpenDB(fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name))
	if err != nil {
		return nil, err
	}
	if err = initialization.SetupDB(d, migrations, name); err != nil {
		return nil, err
	}

	f := &Fixture{DB: impl.New(d)}
	u, _ := url.Parse(LocalURL)
	f.Config = &config.Configuration{
		Name:          "Local wiki",
		Domain:        u.Host,
		Url:           u,
		RsaKeySize:    1024,
		AdminUsername: "admin",
		MediaType:     config.Markdown,
		Workers:       4,
	}

	if f.Local, err = initialization.Bootstrap(ctx, f.DB, f.Config); err != nil {
		return nil, err
	}
	if f.Admin, err = f.DB.GetLocalPerson(ctx, f.Config.AdminUsername); err != nil {
		return nil, err
	}
	if f.State, err = state.New(f.DB, f.Config, f.Local); err != nil {
		return nil, err
	}

	pub, priv, err := utils.GenerateKeysPem(f.Config.RsaKeySize)
	if err != nil {
		return nil, err
	}
	if f.RemoteKey, err = utils.ParsePrivateKey(priv); err != nil {
		return nil, err
	}

	remote, _ := url.Parse(RemoteURL)
	inbox := remote.JoinPath(federation.InboxPath)
	f.Remote, err = f.DB.UpsertInstance(ctx, domain.Instance{
		ApID:        remote,
		Domain:      remote.Host,
		Name:        "Remote wiki",
		Inbox:       inbox,
		SharedInbox: inbox,
		Articles:    remote.JoinPath(federation.ArticlesPath),
		Instances:   remote.JoinPath(federation.InstancesPath),
		PublicKey:   pub,
		LastRefresh: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	alice := federation.UserIRI(remote, "alice")
	f.Alice, err = f.DB.UpsertPerson(ctx, domain.Person{
		ApID:        alice,
		InstanceID:  f.Remote.ID,
		Username:    "alice",
		Name:        "Alice",
		Inbox:       alice.JoinPath(federation.InboxPath),
		SharedInbox: inbox,
		PublicKey:   pub,
		LastRefresh: time.Now(),
	})
	return f, err
}

// SignedPost builds a request posting body to the local inbox, signed with the remote instance's key.
func (f *Fixture) SignedPost(body []byte) (*http.Request, error) {
	r := httptest.NewRequest(http.MethodPost, f.Local.Inbox.String(), bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/activity+json")
	r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "date", "digest"},
		httpsig.Signature,
		3600,
	)
	if err != nil {
		return nil, err
	}
	return r, signer.SignRequest(f.RemoteKey, federation.KeyID(f.Remote.ApID).String(), r, body)
}
