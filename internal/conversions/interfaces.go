package conversions

import (
	"net/url"

	"code.superseriousbusiness.org/activity/streams/vocab"
)

type IriProperty interface {
	IsIRI() bool
	GetIRI() *url.URL
}

// TypeOrIri is satisfied by the iterators of properties such as actor and object.
type TypeOrIri interface {
	IriProperty
	GetType() vocab.Type
}

type WithPublicKeyProperty interface {
	GetW3IDSecurityV1PublicKey() vocab.W3IDSecurityV1PublicKeyProperty
	SetW3IDSecurityV1PublicKey(i vocab.W3IDSecurityV1PublicKeyProperty)
}

// Actor holds the properties shared by the Person and Service actors this wiki exchanges.
type Actor interface {
	vocab.Type
	WithPublicKeyProperty
	GetActivityStreamsName() vocab.ActivityStreamsNameProperty
	SetActivityStreamsName(i vocab.ActivityStreamsNameProperty)
	GetActivityStreamsPreferredUsername() vocab.ActivityStreamsPreferredUsernameProperty
	SetActivityStreamsPreferredUsername(i vocab.ActivityStreamsPreferredUsernameProperty)
	GetActivityStreamsSummary() vocab.ActivityStreamsSummaryProperty
	SetActivityStreamsSummary(i vocab.ActivityStreamsSummaryProperty)
	GetActivityStreamsInbox() vocab.ActivityStreamsInboxProperty
	SetActivityStreamsInbox(i vocab.ActivityStreamsInboxProperty)
	SetActivityStreamsUrl(i vocab.ActivityStreamsUrlProperty)
}
