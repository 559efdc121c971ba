package db

import (
	"context"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

type Persons interface {
	CreateLocalPerson(ctx context.Context, person domain.Person) (domain.Person, error)
	// UpsertPerson inserts a remote person or refreshes the copy with the same ApID.
	UpsertPerson(ctx context.Context, person domain.Person) (domain.Person, error)
	GetPersonByID(ctx context.Context, id int64) (domain.Person, error)
	GetPersonByApID(ctx context.Context, apID *url.URL) (domain.Person, error)
	GetLocalPerson(ctx context.Context, username string) (domain.Person, error)
}
