package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// EditVersion identifies a point in the history of an article or comment. It is the hex encoded SHA-256 of the
// full text at that point, so two histories that arrive at the same text share the same version.
type EditVersion string

// VersionOf returns the version of the given text.
func VersionOf(text string) EditVersion {
	sum := sha256.Sum256([]byte(text))
	return EditVersion(hex.EncodeToString(sum[:]))
}

// InitialVersion is the version of every document before its first edit.
var InitialVersion = VersionOf("")

func (v EditVersion) String() string {
	return string(v)
}

// Short returns a prefix of the version, for logging.
func (v EditVersion) Short() string {
	if len(v) > 12 {
		return string(v[:12])
	}
	return string(v)
}

// Target names the document an edit applies to: an article, or one of the comments attached to it.
type Target struct {
	ArticleID int64
	// CommentID is zero for edits to the article text itself.
	CommentID int64
}

func ArticleTarget(id int64) Target {
	return Target{ArticleID: id}
}

func CommentTarget(articleID, commentID int64) Target {
	return Target{ArticleID: articleID, CommentID: commentID}
}

func (t Target) IsComment() bool {
	return t.CommentID != 0
}

// Public is the ActivityStreams public collection.
var Public, _ = url.Parse("https://www.w3.org/ns/activitystreams#Public")
