package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedwiki/internal/conversions"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
)

type Kind string

const (
	KindFollow Kind = "Follow"
	KindAccept Kind = "Accept"
	KindCreate Kind = "Create"
	KindUpdate Kind = "Update"
)

// Activity is one of Follow, Accept, Create or Update. The set is closed: handlers switch over the concrete
// types.
type Activity interface {
	ID() *url.URL
	Actor() *url.URL
	Kind() Kind
	withID(id *url.URL) Activity
}

type envelope struct {
	IRI *url.URL
	By  *url.URL
}

func (e envelope) ID() *url.URL    { return e.IRI }
func (e envelope) Actor() *url.URL { return e.By }

type Follow struct {
	envelope
	Object *url.URL
}

func NewFollow(actor, object *url.URL) Follow {
	return Follow{envelope: envelope{By: actor}, Object: object}
}

func (Follow) Kind() Kind { return KindFollow }

func (f Follow) withID(id *url.URL) Activity {
	f.IRI = id
	return f
}

type Accept struct {
	envelope
	Follow Follow
}

func NewAccept(actor *url.URL, follow Follow) Accept {
	return Accept{envelope: envelope{By: actor}, Follow: follow}
}

func (Accept) Kind() Kind { return KindAccept }

func (a Accept) withID(id *url.URL) Activity {
	a.IRI = id
	return a
}

// Content is the object of a Create or Update: exactly one of Article and Comment is set.
type Content struct {
	Article *objects.Article
	Comment *objects.Comment
}

func (c Content) id() string {
	if c.Article != nil {
		return c.Article.ID
	}
	return c.Comment.ID
}

func (c Content) value() any {
	if c.Article != nil {
		return c.Article
	}
	return c.Comment
}

type Create struct {
	envelope
	Object Content
}

func NewCreate(actor *url.URL, object Content) Create {
	return Create{envelope: envelope{By: actor}, Object: object}
}

func (Create) Kind() Kind { return KindCreate }

func (c Create) withID(id *url.URL) Activity {
	c.IRI = id
	return c
}

type Update struct {
	envelope
	Object Content
}

func NewUpdate(actor *url.URL, object Content) Update {
	return Update{envelope: envelope{By: actor}, Object: object}
}

func (Update) Kind() Kind { return KindUpdate }

func (u Update) withID(id *url.URL) Activity {
	u.IRI = id
	return u
}

// contentActivity is the wire form of Create and Update.
type contentActivity struct {
	Context   any             `json:"@context,omitempty"`
	Type      Kind            `json:"type"`
	ID        string          `json:"id"`
	Actor     string          `json:"actor"`
	To        []string        `json:"to,omitempty"`
	Object    json.RawMessage `json:"object"`
	Published time.Time       `json:"published"`
}

func toFollowAS(f Follow) vocab.ActivityStreamsFollow {
	return conversions.NewFollow(f.IRI, f.By, f.Object)
}

// Encode returns the wire form of an activity.
func Encode(a Activity) ([]byte, error) {
	if a.ID() == nil || a.Actor() == nil {
		return nil, fmt.Errorf("%w: activity id and actor", federation.ErrMissingProperty)
	}

	var object Content
	switch a := a.(type) {
	case Follow:
		return serialize(toFollowAS(a))
	case Accept:
		return serialize(conversions.NewAccept(a.IRI, a.By, toFollowAS(a.Follow)))
	case Create:
		object = a.Object
	case Update:
		object = a.Object
	default:
		return nil, fmt.Errorf("%w: %T", federation.ErrUnsupported, a)
	}

	raw, err := json.Marshal(object.value())
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentActivity{
		Context:   objects.Context,
		Type:      a.Kind(),
		ID:        a.ID().String(),
		Actor:     a.Actor().String(),
		To:        []string{domain.Public.String()},
		Object:    raw,
		Published: time.Now().UTC(),
	})
}

func serialize(t vocab.Type) ([]byte, error) {
	m, err := streams.Serialize(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses an inbound activity. Anything outside the four supported kinds is rejected.
func Decode(ctx context.Context, body []byte) (Activity, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	switch head.Type {
	case KindFollow, KindAccept:
		return decodeSocial(ctx, body)
	case KindCreate, KindUpdate:
		return decodeContent(head.Type, body)
	default:
		return nil, fmt.Errorf("%w: activity type %q", federation.ErrUnsupported, head.Type)
	}
}

func decodeSocial(ctx context.Context, body []byte) (Activity, error) {
	var props map[string]any
	if err := json.Unmarshal(body, &props); err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	t, err := streams.ToType(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	switch t := t.(type) {
	case vocab.ActivityStreamsFollow:
		p, err := conversions.FollowFromAS(t)
		if err != nil {
			return nil, err
		}
		return fromParts(p), nil
	case vocab.ActivityStreamsAccept:
		p, err := conversions.AcceptFromAS(t)
		if err != nil {
			return nil, err
		}
		return Accept{envelope: envelope{IRI: p.ID, By: p.Actor}, Follow: fromParts(p.Follow)}, nil
	default:
		return nil, fmt.Errorf("%w: activity type %q", federation.ErrUnsupported, t.GetTypeName())
	}
}

func fromParts(p conversions.FollowParts) Follow {
	return Follow{envelope: envelope{IRI: p.ID, By: p.Actor}, Object: p.Object}
}

func decodeContent(kind Kind, body []byte) (Activity, error) {
	var w contentActivity
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	id, err := parseIRI("id", w.ID)
	if err != nil {
		return nil, err
	}
	actor, err := parseIRI("actor", w.Actor)
	if err != nil {
		return nil, err
	}
	if len(w.Object) == 0 {
		return nil, fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	var objHead struct {
		Type string `json:"type"`
	}
	if err = json.Unmarshal(w.Object, &objHead); err != nil {
		return nil, fmt.Errorf("%w: object must be embedded: %w", federation.ErrUnprocessablePropValue, err)
	}

	var content Content
	switch objHead.Type {
	case objects.ArticleType:
		content.Article = new(objects.Article)
		err = json.Unmarshal(w.Object, content.Article)
	case objects.NoteType:
		content.Comment = new(objects.Comment)
		err = json.Unmarshal(w.Object, content.Comment)
	default:
		return nil, fmt.Errorf("%w: object type %q", federation.ErrUnsupported, objHead.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	env := envelope{IRI: id, By: actor}
	if kind == KindCreate {
		return Create{envelope: env, Object: content}, nil
	}
	return Update{envelope: env, Object: content}, nil
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
