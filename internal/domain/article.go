package domain

import (
	"net/url"
	"time"
)

type Article struct {
	ID         int64
	ApID       *url.URL
	InstanceID int64
	Title      string
	// Text is a cached projection of the edit history: replaying every edit from the empty text yields it.
	Text      string
	Head      EditVersion
	Local     bool
	Protected bool
	Approved  bool
	Published time.Time
	Updated   time.Time
}

// Edit is an accepted change to an article or comment. Edits are never modified once stored.
type Edit struct {
	ID     int64
	ApID   *url.URL
	Target Target
	// Seq orders the edits of a single target, starting at 1.
	Seq             int64
	AuthorID        int64
	Patch           string
	Summary         string
	Version         EditVersion
	PreviousVersion EditVersion
	// Local is false for edits received through federation or copied by a fork.
	Local     bool
	Published time.Time
	// Source is the id a received edit was announced under, when merging gave it an id of its own.
	Source *url.URL
}

// EditConflict is a submission that could not be merged with the edits that landed after the version it was
// based on.
type EditConflict struct {
	ID       int64
	Target   Target
	AuthorID int64
	Patch    string
	Summary  string
	// BasedOn is the version the author believed to be current.
	BasedOn EditVersion
	// Actual is the head at the time the submission was rejected.
	Actual  EditVersion
	Created time.Time
}

type Comment struct {
	ID        int64
	ApID      *url.URL
	ArticleID int64
	// ParentID is zero for top level comments.
	ParentID  int64
	AuthorID  int64
	Text      string
	Head      EditVersion
	Local     bool
	Published time.Time
	Updated   time.Time
}
