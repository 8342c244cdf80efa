package api

import (
	"net/http"

	"github.com/psantana5/e2e-tester/pkg/auth"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/middleware"
	"github.com/psantana5/e2e-tester/pkg/tracing"
)

// ChainOptions configures the middleware wrapped around the router
type ChainOptions struct {
	Log         *logging.Logger
	Observer    middleware.RequestObserver
	Verifier    *auth.Verifier
	CORSOrigins []string
	Tracer      *tracing.Provider
	// LogStacks adds panic stacks to error logs
	LogStacks bool
}

// PublicPaths never require an API key
var PublicPaths = []string{"/", "/health"}

// Chain returns the full HTTP handler: router plus middleware
func (h *Handler) Chain(opts ChainOptions) http.Handler {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	router := h.NewRouter()

	var handler http.Handler = router
	handler = middleware.APIKey(opts.Verifier, PublicPaths...)(handler)
	if opts.Tracer != nil {
		handler = tracing.HTTPMiddleware(opts.Tracer)(handler)
	}
	handler = middleware.CORS(opts.CORSOrigins)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(log, opts.LogStacks)(handler)
	handler = middleware.Logging(log, opts.Observer, router)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
