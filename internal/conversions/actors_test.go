package conversions

import (
	"context"
	"crypto/rsa"
	_ "embed"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

//go:embed actors.json
var actors []byte

var ctx = context.Background()

var ignoreRefresh = cmpopts.IgnoreFields(domain.Instance{}, "LastRefresh")

func toURL(u string) *url.URL {
	url, _ := url.Parse(u)
	return url
}

func loadActors(t *testing.T) []map[string]any {
	t.Helper()
	var objects []map[string]any
	if err := json.Unmarshal(actors, &objects); err != nil {
		t.Fatal(err)
	}
	return objects
}

func TestInstanceFromJSON(t *testing.T) {
	objects := loadActors(t)

	cases := []struct {
		name     string
		object   map[string]any
		expected domain.Instance
		err      error
	}{
		{
			name:   "valid instance",
			object: objects[0],
			expected: domain.Instance{
				ApID:        toURL("https://remote.wiki"),
				Domain:      "remote.wiki",
				Name:        "Remote wiki",
				Topic:       "Everything about birds",
				Inbox:       toURL("https://remote.wiki/inbox"),
				SharedInbox: toURL("https://remote.wiki/inbox"),
				Articles:    toURL("https://remote.wiki/all_articles"),
				Instances:   toURL("https://remote.wiki/linked_instances"),
				PublicKey:   "remote key",
			},
		},
		{
			name:   "collection on another domain",
			object: objects[1],
			err:    federation.ErrVerification,
		},
		{
			name:   "person is not an instance",
			object: objects[2],
			err:    federation.ErrUnsupported,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			i, err := InstanceFromJSON(ctx, c.object)
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Fatalf("expected %v, got %v", c.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal("unexpected error:", err)
			}

			if diff := cmp.Diff(c.expected, i, ignoreRefresh); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestPersonFromJSON(t *testing.T) {
	objects := loadActors(t)

	p, err := PersonFromJSON(ctx, objects[2])
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	expected := domain.Person{
		ApID:      toURL("https://remote.wiki/user/ana"),
		Username:  "ana",
		Inbox:     toURL("https://remote.wiki/user/ana/inbox"),
		PublicKey: "ana key",
	}
	if diff := cmp.Diff(expected, p, cmpopts.IgnoreFields(domain.Person{}, "LastRefresh")); diff != "" {
		t.Error(diff)
	}

	if _, err = PersonFromJSON(ctx, objects[3]); !errors.Is(err, federation.ErrMissingProperty) {
		t.Errorf("expected ErrMissingProperty, got %v", err)
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	pub, _, err := utils.GenerateKeysPem(1024)
	if err != nil {
		t.Fatal(err)
	}

	local := domain.Instance{
		ApID:        toURL("https://local.wiki"),
		Domain:      "local.wiki",
		Name:        "Local",
		Inbox:       toURL("https://local.wiki/inbox"),
		SharedInbox: toURL("https://local.wiki/inbox"),
		Articles:    toURL("https://local.wiki/all_articles"),
		Instances:   toURL("https://local.wiki/linked_instances"),
		PublicKey:   pub,
	}

	m, err := InstanceToJSON(local)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate the trip over the wire.
	data, _ := json.Marshal(m)
	var props map[string]any
	json.Unmarshal(data, &props)

	back, err := InstanceFromJSON(ctx, props)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if diff := cmp.Diff(local, back, ignoreRefresh); diff != "" {
		t.Error(diff)
	}

	key, err := ParseActorKey(InstanceToActor(local))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if _, ok := key.(*rsa.PublicKey); !ok {
		t.Errorf("expected an RSA key, got %T", key)
	}

	keyID := InstanceToActor(local).GetW3IDSecurityV1PublicKey().Begin().Get().GetJSONLDId().Get()
	if keyID.String() != "https://local.wiki#main-key" {
		t.Errorf("unexpected key id %s", keyID)
	}
}
