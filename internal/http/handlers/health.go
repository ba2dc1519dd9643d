package handlers

import (
	"fmt"
	"net/http"

	"stylegen/internal/middleware"
)

const serviceName = "DALL·E Image Generator"

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Limits  string `json:"limits"`
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: serviceName,
		Limits:  fmt.Sprintf("%d requests/%s", a.RateLimitMax, middleware.WindowLabel(a.RateLimitWindow)),
	})
}
