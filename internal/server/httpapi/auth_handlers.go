package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/server/services"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type keyResponse struct {
	Key string `json:"key"`
}

type registrationRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type userResponse struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.FieldErrors{common.NonFieldErrors: {"JSON parse error - " + err.Error()}}
	}
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	errs := common.FieldErrors{}
	if in.Username == "" {
		errs.Add("username", "This field is required.")
	}
	if in.Password == "" {
		errs.Add("password", "This field is required.")
	}
	if err := errs.Err(); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.users.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Key: token})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	_, token := caller(r)
	if err := h.users.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail{detailLoggedOut})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in registrationRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), services.Registration{
		Username:  in.Username,
		Email:     in.Email,
		Password1: in.Password1,
		Password2: in.Password2,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.users.Login(r.Context(), u.Username, in.Password1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyResponse{Key: token})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	username, _ := caller(r)
	u, err := h.users.Me(r.Context(), username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	})
}

func (h *Handler) usernames(w http.ResponseWriter, r *http.Request) {
	names, err := h.users.Usernames(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
