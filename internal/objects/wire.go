package objects

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

const (
	ArticleType           = "Article"
	NoteType              = "Note"
	EditType              = "Edit"
	CollectionType        = "Collection"
	OrderedCollectionType = "OrderedCollection"
)

const Context = "https://www.w3.org/ns/activitystreams"

// Edit is the wire form of an accepted edit. Content holds the patch, not the resulting text.
type Edit struct {
	Type            string    `json:"type"`
	ID              string    `json:"id"`
	Object          string    `json:"object"`
	PreviousVersion string    `json:"previousVersion"`
	Version         string    `json:"version"`
	Content         string    `json:"content"`
	Summary         string    `json:"summary,omitempty"`
	AttributedTo    string    `json:"attributedTo"`
	Published       time.Time `json:"published"`
}

type Article struct {
	Context any    `json:"@context,omitempty"`
	Type    string `json:"type"`
	ID      string `json:"id"`
	// AttributedTo is the article's home instance.
	AttributedTo  string    `json:"attributedTo"`
	Name          string    `json:"name"`
	Content       string    `json:"content"`
	MediaType     string    `json:"mediaType,omitempty"`
	LatestVersion string    `json:"latestVersion"`
	Edits         string    `json:"edits"`
	Protected     bool      `json:"protected"`
	Published     time.Time `json:"published"`
	Updated       time.Time `json:"updated"`
	// Edit is the change an Update or Create announces.
	Edit *Edit `json:"edit,omitempty"`
}

type Comment struct {
	Context      any    `json:"@context,omitempty"`
	Type         string `json:"type"`
	ID           string `json:"id"`
	AttributedTo string `json:"attributedTo"`
	// Article is the IRI of the article the comment is attached to.
	Article string `json:"context"`
	// InReplyTo is the parent comment, or the article for top level comments.
	InReplyTo     string    `json:"inReplyTo"`
	Content       string    `json:"content"`
	LatestVersion string    `json:"latestVersion"`
	Published     time.Time `json:"published"`
	Updated       time.Time `json:"updated"`
	Edit          *Edit     `json:"edit,omitempty"`
}

type Collection struct {
	Context      any               `json:"@context,omitempty"`
	Type         string            `json:"type"`
	ID           string            `json:"id"`
	TotalItems   int               `json:"totalItems"`
	Items        []json.RawMessage `json:"items,omitempty"`
	OrderedItems []json.RawMessage `json:"orderedItems,omitempty"`
}

// Entries returns the members of either kind of collection.
func (c Collection) Entries() []json.RawMessage {
	if c.Type == OrderedCollectionType {
		return c.OrderedItems
	}
	return c.Items
}

func NewCollection(id *url.URL, ordered bool, items []json.RawMessage) Collection {
	c := Collection{
		Context:    Context,
		Type:       CollectionType,
		ID:         id.String(),
		TotalItems: len(items),
	}
	if ordered {
		c.Type = OrderedCollectionType
		c.OrderedItems = items
	} else {
		c.Items = items
	}
	return c
}

// IRIEntry decodes a collection member that is either an IRI or an object with an id.
func IRIEntry(raw json.RawMessage) (*url.URL, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err = json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: collection entry", federation.ErrUnprocessablePropValue)
		}
		s = obj.ID
	}
	return parseIRI("id", s)
}

// peek returns the type and id of a document.
func peek(data []byte) (typ string, id *url.URL, err error) {
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err = json.Unmarshal(data, &head); err != nil {
		return "", nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	id, err = parseIRI("id", head.ID)
	return head.Type, id, err
}

func parseIRI(prop, s string) (*url.URL, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s", federation.ErrMissingProperty, prop)
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %s is not an absolute IRI", federation.ErrUnprocessablePropValue, prop)
	}
	return u, nil
}

func iriString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
