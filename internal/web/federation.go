package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/conversions"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

// Inbox receives activities posted by other instances. Accepted activities are answered with 202, since
// anything they cause to be sent back is delivered later.
func Inbox(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.gateway.HandleInbox(r.Context(), r); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func Instance(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instance, err := h.st.DB.GetLocalInstance(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		doc, err := conversions.InstanceToJSON(instance)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, doc)
	}
}

func Person(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.service.GetPerson(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			fail(w, r, err)
			return
		}
		doc, err := conversions.PersonToJSON(p)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, doc)
	}
}

// article returns the published local article named in the path. Unapproved articles do not exist to peers.
func (h *Handler) article(r *http.Request) (domain.Article, error) {
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil {
		return domain.Article{}, db.ErrNotFound
	}
	a, err := h.service.GetLocalArticle(r.Context(), title)
	if err != nil {
		return a, err
	}
	if !a.Approved {
		return a, db.ErrNotFound
	}
	return a, nil
}

func Article(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := h.article(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		doc, err := h.resolver.ArticleToJSON(r.Context(), a, nil)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, doc)
	}
}

// ArticleEdits serves the full history of an article, which peers replay to catch up.
func ArticleEdits(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := h.article(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		c, err := h.resolver.EditsCollection(r.Context(), a)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, c)
	}
}

func Comment(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		iri := h.st.Local.ApID.JoinPath(federation.CommentPath, chi.URLParam(r, "id"))
		c, err := h.st.DB.GetCommentByApID(ctx, iri)
		if err != nil {
			fail(w, r, err)
			return
		}
		article, err := h.st.DB.GetArticleByID(ctx, c.ArticleID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if article.Local && !article.Approved {
			fail(w, r, db.ErrNotFound)
			return
		}

		doc, err := h.resolver.CommentToJSON(ctx, c, nil)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, doc)
	}
}

func LocalArticles(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := h.resolver.LocalArticles(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, r, c)
	}
}

func LinkedInstances(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := h.sync.LinkedInstances(r.Context())
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			fail(w, r, err)
			return
		}
		if err != nil {
			log.Debug().Msg("no linked instances")
		}
		writeJSON(w, r, c)
	}
}
