package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"quranchat/internal/app"
	"quranchat/internal/ratelimit"
	"quranchat/internal/usertoken"
	"quranchat/internal/util"
	"quranchat/pkg/ai"
	"quranchat/pkg/domain"
	"quranchat/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Store          store.Store
	TokenVerifier  *usertoken.Verifier
	CORS           *util.CORS
	TrustedProxies *util.TrustedProxies
	ChatLimiter    ratelimit.Limiter
	ImageLimiter   ratelimit.Limiter
}

// Server exposes the HTTP API.
type Server struct {
	app           *app.App
	store         store.Store
	tokenVerifier *usertoken.Verifier
	cors          *util.CORS
	trusted       *util.TrustedProxies
	chatLimiter   ratelimit.Limiter
	imageLimiter  ratelimit.Limiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		store:         cfg.Store,
		tokenVerifier: cfg.TokenVerifier,
		cors:          cfg.CORS,
		trusted:       cfg.TrustedProxies,
		chatLimiter:   cfg.ChatLimiter,
		imageLimiter:  cfg.ImageLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	if s.cors != nil {
		h = s.cors.Wrap(h)
	}
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/chat/clear", s.handleChatClear)
	s.mux.HandleFunc("/api/image", s.handleImage)
	s.mux.HandleFunc("/api/conversations", s.handleConversations)
	s.mux.HandleFunc("/api/conversations/merge", s.handleMerge)
	s.mux.HandleFunc("/api/conversations/", s.handleConversationByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	SessionID      string               `json:"sessionId"`
	ConversationID string               `json:"conversationId"`
	Message        string               `json:"message"`
	Language       string               `json:"language"`
	History        []domain.ChatMessage `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many chat requests") {
		return
	}
	identity, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reply, err := s.app.Turn(r.Context(), app.TurnRequest{
		SessionID:      req.SessionID,
		Identity:       identity,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		History:        req.History,
		Language:       req.Language,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type clearRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	identity, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req clearRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Turns submitted without a sessionId are guarded under the identity
	// key, so clearing falls back the same way.
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = identity
	}
	s.app.Clear(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

type imageRequest struct {
	Theme string `json:"theme"`
	Surah int    `json:"surah"`
	Ayah  int    `json:"ayah"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.imageLimiter, "too many image requests") {
		return
	}
	if _, _, ok := s.identity(w, r); !ok {
		return
	}
	var req imageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	uri, err := s.app.GenerateVerseImage(r.Context(), req.Theme, req.Surah, req.Ayah)
	if err != nil {
		writeImageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image": uri})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "conversation history not configured")
		return
	}
	identity, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	if search == "" {
		search = strings.TrimSpace(r.URL.Query().Get("search"))
	}
	convs, err := s.store.ListConversations(identity, search, store.MaxListedConversations)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "conversation history not configured")
		return
	}
	identity, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	id, tail, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	conv, found, err := s.store.GetConversation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	// Ownership failures read as not-found so ids cannot be probed.
	if !found || conv.UserID != identity {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodDelete:
		if err := s.store.DeleteConversation(id); err != nil {
			writeError(w, http.StatusInternalServerError, "could not delete conversation")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case tail == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, conv)
	case tail == "messages" && r.Method == http.MethodGet:
		msgs, err := s.store.ListMessages(id, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not list messages")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	default:
		methodNotAllowed(w)
	}
}

type mergeRequest struct {
	AnonymousID string `json:"anonymousId"`
}

// handleMerge reassigns an anonymous identity's conversations to the
// authenticated caller. It requires a verified bearer token.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "conversation history not configured")
		return
	}
	identity, authenticated, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !authenticated {
		writeError(w, http.StatusUnauthorized, "merge requires a signed-in account")
		return
	}
	var req mergeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	anonID := strings.TrimSpace(req.AnonymousID)
	if anonID == "" {
		anonID = strings.TrimSpace(r.Header.Get("X-Anonymous-Id"))
	}
	if anonID == "" {
		writeError(w, http.StatusBadRequest, "anonymousId is required")
		return
	}
	if anonID == identity {
		writeError(w, http.StatusBadRequest, "cannot merge an identity into itself")
		return
	}

	moved, err := s.store.MergeIdentity(anonID, identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not merge conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"moved": moved})
}

// identity resolves the caller: a verified bearer token wins, otherwise the
// anonymous id header. A present-but-invalid token is rejected rather than
// downgraded.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	if token, ok := bearerToken(r); ok {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return "", false, false
		}
		sub, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return "", false, false
		}
		return sub, true, true
	}
	if anon := strings.TrimSpace(r.Header.Get("X-Anonymous-Id")); anon != "" {
		return anon, false, true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
	return "", false, false
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyMessage), errors.Is(err, app.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrTurnSuperseded):
		writeError(w, http.StatusConflict, "turn superseded")
	default:
		writeError(w, http.StatusBadGateway, "assistant unavailable")
	}
}

func writeImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrThemeTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrImageDisabled):
		writeError(w, http.StatusNotImplemented, "image generation not available")
	case errors.Is(err, ai.ErrImageRefused):
		writeError(w, http.StatusUnprocessableEntity, "the image request was declined")
	case errors.Is(err, ai.ErrRateLimited), errors.Is(err, ai.ErrQuotaExceeded):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "image generation is rate limited")
	default:
		writeError(w, http.StatusBadGateway, "image generation failed")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
