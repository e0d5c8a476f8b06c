package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/haovie/clonevideo/api/v1"
	"github.com/haovie/clonevideo/internal/auth"
	"github.com/haovie/clonevideo/internal/authstore"
)

// New sets up the admin API routes and required middleware.
func New(logger *slog.Logger, authorizer *authstore.Authorizer, apiToken string) *mux.Router {

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	userHandler := v1.NewUserHandler(logger, authorizer)

	r.Use(v1.RequestID)
	r.Use(userHandler.Log)
	r.Use(auth.Middleware(apiToken))

	api := r.PathPrefix("/v1").Subrouter()

	// GETs
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/users", userHandler.GetUsers)

	// POSTs
	post := api.Methods("POST").Subrouter()
	post.HandleFunc("/users", userHandler.AddUser)

	// DELETEs
	del := api.Methods("DELETE").Subrouter()
	del.HandleFunc("/users/{id:-?[0-9]+}", userHandler.RemoveUser)

	return r
}
