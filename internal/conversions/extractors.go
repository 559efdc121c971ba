package conversions

import (
	"crypto"
	"fmt"
	"net/url"

	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

func ExtractPublicKeyFromActor(actor WithPublicKeyProperty) (string, error) {
	pubKeyProp := actor.GetW3IDSecurityV1PublicKey()
	if pubKeyProp == nil || pubKeyProp.Len() == 0 {
		return "", fmt.Errorf("%w: public key", federation.ErrMissingProperty)
	}

	key := pubKeyProp.Begin().Get()
	if key == nil {
		return "", fmt.Errorf("%w: public key is an IRI", federation.ErrUnprocessablePropValue)
	}
	keyPemProp := key.GetW3IDSecurityV1PublicKeyPem()
	if keyPemProp == nil {
		return "", fmt.Errorf("%w: publicKeyPem", federation.ErrMissingProperty)
	}
	return keyPemProp.Get(), nil
}

// ParseActorKey extracts and parses the public key of an actor.
func ParseActorKey(actor WithPublicKeyProperty) (crypto.PublicKey, error) {
	keyPem, err := ExtractPublicKeyFromActor(actor)
	if err != nil {
		return nil, err
	}

	key, err := utils.ParsePublicKey(keyPem)
	if err != nil {
		return nil, fmt.Errorf("%w: publicKeyPem: %w", federation.ErrUnprocessablePropValue, err)
	}
	return key, nil
}

// ExtractIRI returns the IRI of a property value that is either an IRI or an embedded object with an id.
func ExtractIRI(prop TypeOrIri) (*url.URL, error) {
	if prop.IsIRI() {
		return prop.GetIRI(), nil
	}
	if t := prop.GetType(); t != nil {
		if id := t.GetJSONLDId(); id != nil && id.Get() != nil {
			return id.Get(), nil
		}
	}
	return nil, fmt.Errorf("%w: value has no id", federation.ErrUnprocessablePropValue)
}

func ExtractID(t vocab.Type) (*url.URL, error) {
	id := t.GetJSONLDId()
	if id == nil || id.Get() == nil {
		return nil, fmt.Errorf("%w: id", federation.ErrMissingProperty)
	}
	return id.Get(), nil
}

// endpoint reads an IRI out of the raw actor document, e.g. endpoints.sharedInbox.
func endpoint(props map[string]any, path ...string) *url.URL {
	var v any = props
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}

	s, ok := v.(string)
	if !ok {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}
