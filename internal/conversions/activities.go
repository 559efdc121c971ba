package conversions

import (
	"fmt"
	"net/url"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

func setID(t vocab.Type, id *url.URL) {
	idProp := streams.NewJSONLDIdProperty()
	idProp.SetIRI(id)
	t.SetJSONLDId(idProp)
}

func actorProp(actor *url.URL) vocab.ActivityStreamsActorProperty {
	prop := streams.NewActivityStreamsActorProperty()
	prop.AppendIRI(actor)
	return prop
}

func NewFollow(id, actor, object *url.URL) vocab.ActivityStreamsFollow {
	f := streams.NewActivityStreamsFollow()
	setID(f, id)
	f.SetActivityStreamsActor(actorProp(actor))

	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendIRI(object)
	f.SetActivityStreamsObject(objProp)
	return f
}

// NewAccept accepts follow on behalf of actor. The Follow is embedded so the receiver does not have to
// dereference it.
func NewAccept(id, actor *url.URL, follow vocab.ActivityStreamsFollow) vocab.ActivityStreamsAccept {
	a := streams.NewActivityStreamsAccept()
	setID(a, id)
	a.SetActivityStreamsActor(actorProp(actor))

	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendActivityStreamsFollow(follow)
	a.SetActivityStreamsObject(objProp)
	return a
}

// FollowParts are the identifiers of a Follow.
type FollowParts struct {
	ID     *url.URL
	Actor  *url.URL
	Object *url.URL
}

type withActorAndObject interface {
	vocab.Type
	GetActivityStreamsActor() vocab.ActivityStreamsActorProperty
	GetActivityStreamsObject() vocab.ActivityStreamsObjectProperty
}

func actorAndObject(t withActorAndObject) (actor *url.URL, object vocab.ActivityStreamsObjectPropertyIterator, err error) {
	actors := t.GetActivityStreamsActor()
	if actors == nil || actors.Len() != 1 {
		return nil, nil, fmt.Errorf("%w: %s must have exactly one actor", federation.ErrUnprocessablePropValue, t.GetTypeName())
	}
	if actor, err = ExtractIRI(actors.Begin()); err != nil {
		return
	}

	objects := t.GetActivityStreamsObject()
	if objects == nil || objects.Len() != 1 {
		return nil, nil, fmt.Errorf("%w: %s must have exactly one object", federation.ErrUnprocessablePropValue, t.GetTypeName())
	}
	return actor, objects.Begin(), nil
}

func FollowFromAS(f vocab.ActivityStreamsFollow) (p FollowParts, err error) {
	if p.ID, err = ExtractID(f); err != nil {
		return
	}

	actor, object, err := actorAndObject(f)
	if err != nil {
		return
	}
	p.Actor = actor
	p.Object, err = ExtractIRI(object)
	return
}

// AcceptParts are the identifiers of an Accept and of the Follow it accepts.
type AcceptParts struct {
	ID     *url.URL
	Actor  *url.URL
	Follow FollowParts
}

// AcceptFromAS reads an Accept of a Follow. Only Accepts embedding the Follow are supported.
func AcceptFromAS(a vocab.ActivityStreamsAccept) (p AcceptParts, err error) {
	if p.ID, err = ExtractID(a); err != nil {
		return
	}

	actor, object, err := actorAndObject(a)
	if err != nil {
		return
	}
	p.Actor = actor

	if !object.IsActivityStreamsFollow() {
		return p, fmt.Errorf("%w: Accept of something other than an embedded Follow", federation.ErrUnsupported)
	}
	p.Follow, err = FollowFromAS(object.GetActivityStreamsFollow())
	return
}
