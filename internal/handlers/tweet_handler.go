package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"tweet_ingestion/internal/auth"
	"tweet_ingestion/internal/content"
	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"
)

const reasonMalformedJSON = "malformed_json"

type TokenVerifier interface {
	Verify(token string) (auth.Subject, error)
}

type TweetCreator interface {
	CreateTweet(ctx context.Context, author auth.Subject, c content.Valid) (*models.Post, error)
}

type TweetHandler struct {
	verifier TokenVerifier
	tweets   TweetCreator
	logger   *slog.Logger
}

func NewTweetHandler(verifier TokenVerifier, tweets TweetCreator, logger *slog.Logger) *TweetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TweetHandler{
		verifier: verifier,
		tweets:   tweets,
		logger:   logger,
	}
}

type createTweetRequest struct {
	Content *string `json:"content"`
}

// POST /tweet
// 201: { "id", "content", "author_id", "created_at" }
// 400: malformed json or invalid content
// 401: missing, malformed, invalid or expired token
// 500: row store failure
func (h *TweetHandler) CreateTweet(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	author, err := h.verifier.Verify(token)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	var req createTweetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.invalidContent(w, reasonMalformedJSON)
		return
	}

	var raw string
	if req.Content != nil {
		raw = *req.Content
	}
	valid, err := content.Validate(raw)
	if err != nil {
		h.invalidContent(w, content.Reason(err))
		return
	}

	post, err := h.tweets.CreateTweet(r.Context(), author, valid)
	if err != nil {
		// details were logged by the service
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// unauthorized never tells the client which check failed.
func (h *TweetHandler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	metrics.IncAuthFailure()
	h.logger.Debug("request rejected", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

func (h *TweetHandler) invalidContent(w http.ResponseWriter, reason string) {
	metrics.IncContentRejected(reason)
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":  "Invalid content",
		"reason": reason,
	})
}
