package conversions

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

// Properties outside the ActivityStreams vocabulary, carried by instance actors.
const (
	ArticlesProp  = "articles"
	InstancesProp = "instances"
	EndpointsProp = "endpoints"
	SharedInbox   = "sharedInbox"
)

func fillActor(a Actor, id *url.URL, username, name, summary string, inbox *url.URL, publicKey string) {
	idProp := streams.NewJSONLDIdProperty()
	idProp.SetIRI(id)
	a.SetJSONLDId(idProp)

	if username != "" {
		prop := streams.NewActivityStreamsPreferredUsernameProperty()
		prop.SetXMLSchemaString(username)
		a.SetActivityStreamsPreferredUsername(prop)
	}

	if name != "" {
		prop := streams.NewActivityStreamsNameProperty()
		prop.AppendXMLSchemaString(name)
		a.SetActivityStreamsName(prop)
	}

	if summary != "" {
		prop := streams.NewActivityStreamsSummaryProperty()
		prop.AppendXMLSchemaString(summary)
		a.SetActivityStreamsSummary(prop)
	}

	inboxProp := streams.NewActivityStreamsInboxProperty()
	inboxProp.SetIRI(inbox)
	a.SetActivityStreamsInbox(inboxProp)

	u := streams.NewActivityStreamsUrlProperty()
	u.AppendIRI(id)
	a.SetActivityStreamsUrl(u)

	a.SetW3IDSecurityV1PublicKey(PublicKeyProp(id, publicKey))
}

// serializeActor adds the properties go-fed has no vocabulary for.
func serializeActor(a vocab.Type, sharedInbox *url.URL, extra map[string]*url.URL) (map[string]any, error) {
	m, err := streams.Serialize(a)
	if err != nil {
		return nil, err
	}

	if sharedInbox != nil {
		m[EndpointsProp] = map[string]any{SharedInbox: sharedInbox.String()}
	}
	for key, iri := range extra {
		if iri != nil {
			m[key] = iri.String()
		}
	}
	return m, nil
}

func PersonToActor(p domain.Person) vocab.ActivityStreamsPerson {
	a := streams.NewActivityStreamsPerson()
	fillActor(a, p.ApID, p.Username, p.Name, p.Bio, p.Inbox, p.PublicKey)
	return a
}

// PersonToJSON returns the Person actor document of p.
func PersonToJSON(p domain.Person) (map[string]any, error) {
	return serializeActor(PersonToActor(p), p.SharedInbox, nil)
}

func InstanceToActor(i domain.Instance) vocab.ActivityStreamsService {
	a := streams.NewActivityStreamsService()
	fillActor(a, i.ApID, i.Domain, i.Name, i.Topic, i.Inbox, i.PublicKey)
	return a
}

// InstanceToJSON returns the Service actor document of i, including its collections.
func InstanceToJSON(i domain.Instance) (map[string]any, error) {
	return serializeActor(InstanceToActor(i), i.SharedInbox, map[string]*url.URL{
		ArticlesProp:  i.Articles,
		InstancesProp: i.Instances,
	})
}

type actorFields struct {
	id          *url.URL
	username    string
	name        string
	summary     string
	inbox       *url.URL
	sharedInbox *url.URL
	publicKey   string
}

func readActor(a Actor, props map[string]any) (f actorFields, err error) {
	if f.id, err = ExtractID(a); err != nil {
		return
	}

	if username := a.GetActivityStreamsPreferredUsername(); username != nil {
		f.username = username.GetXMLSchemaString()
	}
	if name := a.GetActivityStreamsName(); name != nil && name.Len() != 0 {
		f.name = name.Begin().GetXMLSchemaString()
	}
	if summary := a.GetActivityStreamsSummary(); summary != nil && summary.Len() != 0 {
		f.summary = summary.Begin().GetXMLSchemaString()
	}

	inbox := a.GetActivityStreamsInbox()
	if inbox == nil {
		err = fmt.Errorf("%w: inbox", federation.ErrMissingProperty)
		return
	}
	if !inbox.IsIRI() {
		err = fmt.Errorf("%w: inbox", federation.ErrUnprocessablePropValue)
		return
	}
	f.inbox = inbox.GetIRI()
	f.sharedInbox = endpoint(props, EndpointsProp, SharedInbox)

	f.publicKey, err = ExtractPublicKeyFromActor(a)
	return
}

// PersonFromJSON converts a fetched Person document. Its id must be on the same host as its inbox.
func PersonFromJSON(ctx context.Context, props map[string]any) (domain.Person, error) {
	t, err := streams.ToType(ctx, props)
	if err != nil {
		return domain.Person{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	a, ok := t.(vocab.ActivityStreamsPerson)
	if !ok {
		return domain.Person{}, fmt.Errorf("%w: expected Person, got %s", federation.ErrUnsupported, t.GetTypeName())
	}

	f, err := readActor(a, props)
	if err != nil {
		return domain.Person{}, err
	}
	if err = federation.CheckDomain(f.inbox, f.id); err != nil {
		return domain.Person{}, err
	}

	return domain.Person{
		ApID:        f.id,
		Username:    f.username,
		Name:        f.name,
		Bio:         f.summary,
		Inbox:       f.inbox,
		SharedInbox: f.sharedInbox,
		PublicKey:   f.publicKey,
		LastRefresh: time.Now(),
	}, nil
}

// InstanceFromJSON converts a fetched instance actor document.
func InstanceFromJSON(ctx context.Context, props map[string]any) (domain.Instance, error) {
	t, err := streams.ToType(ctx, props)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	var a Actor
	switch v := t.(type) {
	case vocab.ActivityStreamsService:
		a = v
	case vocab.ActivityStreamsApplication:
		a = v
	default:
		return domain.Instance{}, fmt.Errorf("%w: expected Service, got %s", federation.ErrUnsupported, t.GetTypeName())
	}

	f, err := readActor(a, props)
	if err != nil {
		return domain.Instance{}, err
	}
	if err = federation.CheckDomain(f.inbox, f.id); err != nil {
		return domain.Instance{}, err
	}

	i := domain.Instance{
		ApID:        f.id,
		Domain:      f.id.Host,
		Name:        f.name,
		Topic:       f.summary,
		Inbox:       f.inbox,
		SharedInbox: f.sharedInbox,
		Articles:    endpoint(props, ArticlesProp),
		Instances:   endpoint(props, InstancesProp),
		PublicKey:   f.publicKey,
		LastRefresh: time.Now(),
	}
	for _, collection := range []*url.URL{i.Articles, i.Instances} {
		if collection != nil {
			if err = federation.CheckDomain(collection, f.id); err != nil {
				return domain.Instance{}, err
			}
		}
	}
	return i, nil
}

func PublicKeyProp(owner *url.URL, publicKeyPem string) vocab.W3IDSecurityV1PublicKeyProperty {
	keyProp := streams.NewW3IDSecurityV1PublicKeyProperty()
	key := streams.NewW3IDSecurityV1PublicKey()

	ownerProp := streams.NewW3IDSecurityV1OwnerProperty()
	ownerProp.SetIRI(owner)

	keyURIProp := streams.NewJSONLDIdProperty()
	keyURIProp.SetIRI(federation.KeyID(owner))

	pemProp := streams.NewW3IDSecurityV1PublicKeyPemProperty()
	pemProp.Set(publicKeyPem)

	key.SetJSONLDId(keyURIProp)
	key.SetW3IDSecurityV1PublicKeyPem(pemProp)
	key.SetW3IDSecurityV1Owner(ownerProp)

	keyProp.AppendW3IDSecurityV1PublicKey(key)
	return keyProp
}
