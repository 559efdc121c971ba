package service

import (
	"errors"
)

var (
	ErrInvalidInput = errors.New("invalid")
	ErrForbidden    = errors.New("forbidden")
)

// Service is the API consumed by the presentation layer. Every operation acting on behalf of a person takes
// the id of a local person; remote people act only through federation.
type Service interface {
	ArticleService
	CommentService
	SocialService
	UserService
}
