package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/messaging"
	"github.com/npezzotti/go-crabs/internal/presence"
	"github.com/npezzotti/go-crabs/internal/server"
	"github.com/npezzotti/go-crabs/internal/stats"
	"github.com/npezzotti/go-crabs/internal/types"
	"github.com/teris-io/shortid"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionResponse struct {
	SessionId string `json:"session_id"`
}

type AvatarRequest struct {
	SessionId string `json:"session_id"`
}

type MoveRequest struct {
	SessionId string  `json:"session_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type PostMessageRequest struct {
	SessionId string `json:"session_id"`
	Text      string `json:"text"`
}

type SweepResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *CrabApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("json encode", "error", err)
	}
}

func (s *CrabApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Errorw("request failed", "error", errResp.Err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *CrabApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *CrabApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if errors.Is(err, database.ErrDuplicate) {
		s.writeError(w, NewConflictError())
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *CrabApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewUnauthorizedError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if !verifyPassword(dbUser.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultExp)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultExp))
	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *CrabApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an already expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *CrabApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(r.Context(), userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func newSessionId(now time.Time) (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}
	return fmt.Sprintf("crab_%d_%s", now.UnixMilli(), id), nil
}

func (s *CrabApp) createSession(w http.ResponseWriter, _ *http.Request) {
	id, err := newSessionId(time.Now())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, SessionResponse{SessionId: id})
}

func (s *CrabApp) getOrCreateAvatar(w http.ResponseWriter, r *http.Request) {
	var req AvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	avatar, created, err := s.presence.GetOrCreate(r.Context(), req.SessionId, ownerId(r.Context()))
	if errors.Is(err, presence.ErrInvalidSession) {
		s.writeError(w, newBadRequestReason(err.Error()))
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.stats.Incr(stats.AvatarsCreated)
	}

	s.cs.Notify()
	s.writeJson(w, status, avatar)
}

func (s *CrabApp) listAvatars(w http.ResponseWriter, r *http.Request) {
	avatars, err := s.presence.ListOnline(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, avatars)
}

func (s *CrabApp) moveAvatar(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	err := s.presence.Move(r.Context(), req.SessionId, req.X, req.Y)
	if errors.Is(err, presence.ErrInvalidSession) || errors.Is(err, presence.ErrInvalidPosition) {
		s.writeError(w, newBadRequestReason(err.Error()))
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.cs.Notify()
	w.WriteHeader(http.StatusNoContent)
}

func (s *CrabApp) postMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	msg, err := s.messages.Post(r.Context(), req.SessionId, req.Text)
	if errors.Is(err, messaging.ErrNotFound) {
		s.writeError(w, NewNotFoundError())
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.stats.Incr(stats.MessagesPosted)
	s.cs.Notify()
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *CrabApp) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.messages.ListLive(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *CrabApp) sweepMessages(w http.ResponseWriter, r *http.Request) {
	n, err := s.messages.SweepExpired(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if n > 0 {
		s.stats.Add(stats.MessagesSwept, int(n))
		s.cs.Notify()
	}
	s.writeJson(w, http.StatusOK, SweepResponse{Deleted: n})
}

func (s *CrabApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *CrabApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("error upgrading connection", "error", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log, s.stats, r.URL.Query().Get("session_id"), ownerId(r.Context()))
	s.cs.RegisterClient(client)

	go client.Write()
	go client.Read()
}
