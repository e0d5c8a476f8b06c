package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/haovie/clonevideo/internal/authstore"
)

// UserHandler exposes the allowlist over the admin API.
type UserHandler struct {
	l    *slog.Logger
	auth *authstore.Authorizer
}

func NewUserHandler(l *slog.Logger, auth *authstore.Authorizer) *UserHandler {
	return &UserHandler{l: l, auth: auth}
}

type userEntry struct {
	UserID int64  `json:"userId"`
	Via    string `json:"via"`
}

type userBody struct {
	UserID int64 `json:"userId"`
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

func (uh *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	entries, err := uh.auth.List(r.Context())
	if err != nil {
		markErr(w, err)
		http.Error(w, "failed to read allowlist", http.StatusInternalServerError)
		return
	}
	out := make([]userEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, userEntry{UserID: e.UserID, Via: string(e.Via)})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]userEntry{"users": out}); err != nil {
		markErr(w, err)
	}
}

func (uh *UserHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if err := decodeJSONStrict(w, r, &body, 1<<20); err != nil {
		markErr(w, err)
		if errors.Is(err, ErrContentType) {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.UserID == 0 {
		markErr(w, ErrUserID)
		http.Error(w, ErrUserID.Error(), http.StatusBadRequest)
		return
	}
	if err := uh.auth.Add(r.Context(), body.UserID); err != nil {
		markErr(w, err)
		http.Error(w, "failed to update allowlist", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(userEntry{UserID: body.UserID, Via: string(authstore.FromStore)})
}

func (uh *UserHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		markErr(w, err)
		http.Error(w, "Unable to convert ID", http.StatusBadRequest)
		return
	}
	if !uh.auth.Removable(id) {
		markErr(w, ErrPinnedUser)
		http.Error(w, ErrPinnedUser.Error(), http.StatusConflict)
		return
	}
	if err := uh.auth.Remove(r.Context(), id); err != nil {
		markErr(w, err)
		http.Error(w, "failed to update allowlist", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (uh *UserHandler) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rw := &rwLogger{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		timeElapsed := time.Since(startTime)
		if rw.err != nil {
			uh.l.Error(rw.err.Error(),
				"method", r.Method,
				"url", r.URL.Path,
				"status", rw.status,
				"remote", r.RemoteAddr,
				"ua", r.UserAgent(),
				"dur_ms", timeElapsed.Milliseconds(),
				"bytes", rw.bytes)
			return
		}

		uh.l.Info("", "method", r.Method,
			"url", r.URL.Path,
			"status", rw.status,
			"remote", r.RemoteAddr,
			"ua", r.UserAgent(),
			"dur_ms", timeElapsed.Milliseconds(),
			"bytes", rw.bytes)
	})
}
