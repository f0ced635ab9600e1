package handlers

import (
	"net/http"

	"github.com/chatify/apiserver/internal/services"
	"github.com/chatify/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// PostHandler provides HTTP handlers for the feed.
type PostHandler struct {
	feed *services.FeedService
}

// NewPostHandler constructs a handler over the feed service.
func NewPostHandler(feed *services.FeedService) *PostHandler {
	return &PostHandler{feed: feed}
}

// PostRouter registers post routes on the given router.
func PostRouter(r chi.Router, feed *services.FeedService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewPostHandler(feed)

	r.Get("/", handler.GetFeed)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreatePost)
		r.Patch("/{postID}", handler.UpdatePost)
		r.Delete("/{postID}", handler.DeletePost)
		r.Post("/{postID}/likes", handler.ToggleLike)
		r.Post("/{postID}/comments", handler.AddComment)
	})
}

// FeedResponse is the ranked feed together with the hydration state.
type FeedResponse struct {
	Items   []types.Post `json:"items"`
	Loading bool         `json:"loading"`
}

// GetFeed returns the ranked feed for ?filter= and ?sort=.
func (h *PostHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := h.feed.GetFeed(query.Get("filter"), query.Get("sort"))
	if err != nil {
		writeServiceError(w, err, "failed to load feed")
		return
	}
	if items == nil {
		items = []types.Post{}
	}
	writeJSON(w, http.StatusOK, FeedResponse{Items: items, Loading: h.feed.Loading()})
}

// CreatePost creates a post for the caller and returns the optimistic record.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var draft services.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	post, err := h.feed.CreatePost(r.Context(), userID, draft)
	if err != nil {
		writeServiceError(w, err, "failed to create post")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost edits the caller's post.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var edit services.Edit
	if err := decodeJSON(w, r, &edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	post, ok, err := h.feed.UpdatePost(r.Context(), userID, chi.URLParam(r, "postID"), edit)
	writePostResult(w, http.StatusOK, post, ok, err, "failed to update post")
}

// DeletePost removes the caller's post. Deleting a missing post succeeds.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.feed.DeletePost(r.Context(), userID, chi.URLParam(r, "postID")); err != nil {
		writeServiceError(w, err, "failed to delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleLike likes or unlikes a post for the caller.
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	post, ok, err := h.feed.ToggleLike(r.Context(), userID, chi.URLParam(r, "postID"))
	writePostResult(w, http.StatusOK, post, ok, err, "failed to update likes")
}

// AddComment appends a comment by the caller.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var in services.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	post, ok, err := h.feed.AddComment(r.Context(), userID, chi.URLParam(r, "postID"), in)
	writePostResult(w, http.StatusCreated, post, ok, err, "failed to add comment")
}

// writePostResult answers a mutation of a single post. A missing post is
// not an error and yields 204.
func writePostResult(w http.ResponseWriter, status int, post types.Post, ok bool, err error, fallback string) {
	if err != nil {
		writeServiceError(w, err, fallback)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, status, post)
}
