package telegram

import (
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram/middleware"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Middleware is a named handler decorator.
type Middleware struct {
	Name string
	Use  func(next update.HandlerFunc) update.HandlerFunc
}

// DefaultMiddlewares builds the shared middleware chain, outermost first.
func DefaultMiddlewares(m *metrics.Metrics) []Middleware {
	return []Middleware{
		{Name: "context", Use: middleware.Context},
		{Name: "recover", Use: middleware.Recover},
		{Name: "metrics", Use: middleware.Metrics(m)},
	}
}

// Chain wraps h so that mws[0] runs first.
func Chain(h update.HandlerFunc, mws []Middleware) update.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i].Use == nil {
			continue
		}
		h = mws[i].Use(h)
	}
	return h
}
