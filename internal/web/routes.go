package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

func (h *Handler) Mount(r chi.Router) {
	if h.Config.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Get("/", Instance(h))
	r.Post(InboxRoute, Inbox(h))
	r.Get("/"+federation.ArticlesPath, LocalArticles(h))
	r.Get("/"+federation.InstancesPath, LinkedInstances(h))

	r.Route("/"+federation.UserPath+"/{name}", func(r chi.Router) {
		r.Get("/", Person(h))
		// Personal inboxes share the instance's processing.
		r.Post(InboxRoute, Inbox(h))
	})

	r.Route("/"+federation.ArticlePath+"/{title}", func(r chi.Router) {
		r.Get("/", Article(h))
		r.Get("/"+federation.EditsPath, ArticleEdits(h))
	})

	r.Get("/"+federation.CommentPath+"/{id}", Comment(h))
}
