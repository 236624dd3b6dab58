package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcdev12/solowsim/go/internal/gateway"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config *Config, services *Services) *http.Server {
	router := mux.NewRouter()

	// Register gateway routes (WebSocket, REST and health)
	services.Gateway.RegisterRoutes(router)

	// Wrap with CORS
	handler := gateway.CORSMiddleware(config.Server.AllowedOrigins)(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
