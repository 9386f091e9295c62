package api

import (
	"net/http"
	"strconv"

	"github.com/edgard/sponsorbot/internal/database"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listPosts returns every post, or one page of them when limit is given.
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("limit") && !query.Has("offset") {
		posts, err := s.store.ListPosts(r.Context())
		if err != nil {
			s.internalError(w, r, "list posts", err)
			return
		}
		writeData(w, http.StatusOK, toDTOs(posts))
		return
	}

	limit, ok := queryInt(query.Get("limit"), s.opts.MaxPageSize, 1, s.opts.MaxPageSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(s.opts.MaxPageSize))
		return
	}
	offset, ok := queryInt(query.Get("offset"), 0, 0, -1)
	if !ok {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	total, err := s.store.CountPosts(r.Context())
	if err != nil {
		s.internalError(w, r, "count posts", err)
		return
	}
	posts, err := s.store.ListPostsPage(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, r, "list posts page", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toDTOs(posts), Total: &total})
}

// lastPosts returns the newest count posts, still in creation order, along
// with the offset of the first one so the client can page backwards.
func (s *Server) lastPosts(w http.ResponseWriter, r *http.Request) {
	count, ok := queryInt(r.URL.Query().Get("count"), 10, 1, s.opts.MaxPageSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(s.opts.MaxPageSize))
		return
	}

	total, err := s.store.CountPosts(r.Context())
	if err != nil {
		s.internalError(w, r, "count posts", err)
		return
	}
	startOffset := max(total-count, 0)
	posts, err := s.store.ListPostsPage(r.Context(), count, startOffset)
	if err != nil {
		s.internalError(w, r, "list last posts", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:     true,
		Data:        toDTOs(posts),
		Total:       &total,
		StartOffset: &startOffset,
	})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	s.respondPost(w, r, "get post", post, err)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !s.decode(w, r, &req) {
		return
	}

	post := req.post()
	if err := s.store.CreatePost(r.Context(), post); err != nil {
		s.internalError(w, r, "create post", err)
		return
	}
	created, err := s.store.GetPost(r.Context(), post.ID)
	if err == nil && created == nil {
		err = database.ErrPostNotFound
	}
	if err != nil {
		s.internalError(w, r, "reload created post", err)
		return
	}
	writeData(w, http.StatusCreated, toDTO(*created))
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updatePostRequest
	if !s.decode(w, r, &req) {
		return
	}
	post, err := s.store.UpdatePost(r.Context(), id, req.update())
	s.respondPost(w, r, "update post", post, err)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := s.store.DeletePost(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "delete post", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) likePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := s.store.IncrementLike(r.Context(), id)
	s.respondPost(w, r, "like post", post, err)
}

func (s *Server) unlikePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := s.store.DecrementLike(r.Context(), id)
	s.respondPost(w, r, "unlike post", post, err)
}

func (s *Server) respondPost(w http.ResponseWriter, r *http.Request, op string, post *database.Post, err error) {
	switch {
	case err != nil:
		s.internalError(w, r, op, err)
	case post == nil:
		writeError(w, http.StatusNotFound, "Post not found")
	default:
		writeData(w, http.StatusOK, toDTO(*post))
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return 0, false
	}
	return id, true
}

// queryInt parses raw, using def when it is empty. A negative upper bound
// means unbounded.
func queryInt(raw string, def, lower, upper int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lower || (upper >= 0 && n > upper) {
		return 0, false
	}
	return n, true
}
