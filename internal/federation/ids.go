package federation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	ActivityPath  = "activity"
	ArticlePath   = "article"
	CommentPath   = "comment"
	EditPath      = "edit"
	UserPath      = "user"
	InboxPath     = "inbox"
	EditsPath     = "edits"
	InstancesPath = "linked_instances"
	ArticlesPath  = "all_articles"
)

// NewID mints a process-unique identifier under the local instance, such as https://wiki.example/activity/01h....
func NewID(base *url.URL, kind string) *url.URL {
	return base.JoinPath(kind, strings.ToLower(ulid.Make().String()))
}

func ArticleIRI(base *url.URL, title string) *url.URL {
	return base.JoinPath(ArticlePath, title)
}

func UserIRI(base *url.URL, username string) *url.URL {
	return base.JoinPath(UserPath, username)
}

func KeyID(owner *url.URL) *url.URL {
	key := *owner
	key.Fragment = "main-key"
	key.RawFragment = ""
	return &key
}

// Owner strips the fragment of a key id.
func Owner(keyID *url.URL) *url.URL {
	owner := *keyID
	owner.Fragment = ""
	owner.RawFragment = ""
	return &owner
}

// SameHost reports whether two identifiers belong to the same instance.
func SameHost(a, b *url.URL) bool {
	return a != nil && b != nil && strings.EqualFold(a.Host, b.Host)
}

// CheckDomain returns ErrVerification unless id belongs to the instance at expected.
func CheckDomain(id, expected *url.URL) error {
	if !SameHost(id, expected) {
		return fmt.Errorf("%w: %s does not belong to %s", ErrVerification, id, expected.Host)
	}
	return nil
}
