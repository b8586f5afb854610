package http

import (
	"errors"
	"log/slog"
	"net/http"

	"fiado/internal/auth"
	"fiado/internal/core"
)

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	StoreID  int64  `json:"storeId,omitempty"`
}

func viewOf(u core.User) userView {
	return userView{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Role:     string(u.Role),
		StoreID:  u.StoreID,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	user, err := s.users.GetUserByUsername(r.Context(), sanitizeInput(req.Username))
	if err != nil {
		// Unknown users and bad passwords produce the same answer.
		if errors.Is(err, core.ErrUserNotFound) {
			respondError(w, r, auth.ErrInvalidCredentials)
			return
		}
		respondError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID, "role", user.Role)
	respondJSON(w, http.StatusOK, loginResponse{Token: token, User: viewOf(user)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	user, err := s.users.GetUser(r.Context(), actor.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(user))
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	if !actor.IsAdmin() {
		respondError(w, r, core.ErrForbidden)
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Password) < 6 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "password must be at least 6 characters"})
		return
	}
	role, ok := core.NormalizeRole(req.Role)
	if !ok {
		role = core.RoleCustomer
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user := core.User{
		Username:     sanitizeInput(req.Username),
		PasswordHash: hash,
		Name:         sanitizeInput(req.Name),
		Role:         role,
	}
	// Customers buy on credit at the admin's store.
	if role == core.RoleCustomer {
		user.StoreID = actor.StoreID
	}

	created, err := s.users.CreateUser(r.Context(), user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "User created",
		"user_id", created.ID,
		"role", created.Role,
		"created_by", actor.UserID)
	respondJSON(w, http.StatusCreated, viewOf(created))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	if !actor.IsAdmin() {
		respondError(w, r, core.ErrForbidden)
		return
	}

	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOf(u))
	}
	respondJSON(w, http.StatusOK, views)
}

type createStoreRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	if !actor.IsAdmin() {
		respondError(w, r, core.ErrForbidden)
		return
	}

	var req createStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "store name is required"})
		return
	}

	created, err := s.stores.CreateStore(r.Context(), core.Store{Name: name, AdminID: actor.UserID})
	if err != nil {
		respondError(w, r, err)
		return
	}
	// The creating admin runs this store from now on. The new store id
	// shows up in tokens issued after the next login.
	if err := s.users.AssignStore(r.Context(), actor.UserID, created.ID); err != nil {
		respondError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Store created",
		"store_id", created.ID,
		"admin_id", actor.UserID,
		"name", created.Name)
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFrom(r.Context())
	if !actor.IsAdmin() {
		respondError(w, r, core.ErrForbidden)
		return
	}

	stores, err := s.stores.ListStores(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stores)
}
