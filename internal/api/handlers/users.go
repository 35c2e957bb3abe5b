package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/domain/users"
)

type UsersHandler struct {
	Service *users.Service
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewUsersHandler(service *users.Service, auditSvc *audit.Service, msg localizer, env string) *UsersHandler {
	return &UsersHandler{Service: service, Audit: auditSvc, Msg: msg, Env: env}
}

type userDTO struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// toUserDTO never carries the password hash.
func toUserDTO(u users.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login returns whichever identifier the client sent; email wins when both
// are present since that is what the admin frontend submits.
func (req loginRequest) login() string {
	if req.Email != "" {
		return req.Email
	}
	return req.Username
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userDTO   `json:"user"`
}

func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	result, err := h.Service.Authenticate(r.Context(), req.login(), req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrUserDisabled) {
			if h.Audit != nil {
				h.Audit.Failure(r, "auth.login", "user", req.login(), nil)
			}
			respond.Error(w, r, respond.CodeUnauthorized, resolveMsg(h.Msg, r, "auth.invalid_credentials"), err, h.Env)
			return
		}
		respond.Internal(w, r, err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "auth.login", "user", result.User.ID, nil)
	}
	respond.OK(w, http.StatusOK, "", loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserDTO(*result.User),
	})
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input users.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}
	if _, ok := auth.ParseRole(input.Role); input.Role != "" && !ok {
		err := fmt.Errorf("unknown role %q", input.Role)
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	user, err := h.Service.Create(r.Context(), input)
	if err != nil {
		if fields := validationFields(err); fields != nil {
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env, respond.WithData(fields))
			return
		}
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "user.create", "user", user.ID, map[string]string{"role": user.Role})
	}
	respond.OK(w, http.StatusCreated, resolveMsg(h.Msg, r, "user.created"), toUserDTO(*user))
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", toUserDTO(*user))
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.Service.List(r.Context())
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	items := make([]userDTO, 0, len(all))
	for _, u := range all {
		items = append(items, toUserDTO(u))
	}
	respond.OK(w, http.StatusOK, "", items)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}
	if _, ok := auth.ParseRole(req.Role); !ok {
		err := fmt.Errorf("unknown role %q", req.Role)
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	userID := pathParam(r, "id")
	user, err := h.Service.UpdateRole(r.Context(), userID, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "user.role.update", "user", userID, map[string]string{"role": req.Role})
	}
	respond.OK(w, http.StatusOK, "", toUserDTO(*user))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *UsersHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	userID := pathParam(r, "id")
	if err := h.Service.SetActive(r.Context(), userID, req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}

	action := "user.disable"
	if req.Active {
		action = "user.enable"
	}
	if h.Audit != nil {
		h.Audit.Success(r, action, "user", userID, nil)
	}
	respond.OK(w, http.StatusOK, "", nil)
}

func (h *UsersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		respond.Error(w, r, respond.CodeUserNotFound, "", err, h.Env)
	case errors.Is(err, users.ErrUserExists):
		respond.Error(w, r, respond.CodeUserExists, resolveMsg(h.Msg, r, "user.exists"), err, h.Env)
	default:
		respond.Internal(w, r, err, h.Env)
	}
}
