package objects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

// FetchCollection dereferences a collection, which must be served by the host it is named after.
func (r *Resolver) FetchCollection(ctx context.Context, iri *url.URL) (Collection, error) {
	data, err := r.fetch(ctx, iri)
	if err != nil {
		return Collection{}, err
	}

	var c Collection
	if err = json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	if c.Type != CollectionType && c.Type != OrderedCollectionType {
		return c, fmt.Errorf("%w: type %q is not a collection", federation.ErrUnsupported, c.Type)
	}
	id, err := parseIRI("id", c.ID)
	if err != nil {
		return c, err
	}
	return c, federation.CheckDomain(id, iri)
}

// IRIItems encodes a list of identifiers as collection members.
func IRIItems(iris []*url.URL) []json.RawMessage {
	items := make([]json.RawMessage, 0, len(iris))
	for _, iri := range iris {
		raw, _ := json.Marshal(iri.String())
		items = append(items, raw)
	}
	return items
}

// LocalArticles lists the approved articles hosted here.
func (r *Resolver) LocalArticles(ctx context.Context) (Collection, error) {
	articles, err := r.db.ListArticles(ctx, db.ArticleFilter{LocalOnly: true, ApprovedOnly: true})
	if err != nil {
		return Collection{}, err
	}

	iris := make([]*url.URL, len(articles))
	for i, a := range articles {
		iris[i] = a.ApID
	}
	return NewCollection(r.st.Local.ApID.JoinPath(federation.ArticlesPath), false, IRIItems(iris)), nil
}
