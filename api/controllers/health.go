package controllers

import (
	"net/http"

	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/pkg/config"
)

func Healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ModSTR-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
