package handlers

import (
	"github.com/lifeinbox/intake/pkg/middleware"
)

// RegisterRoutes attaches the intake API to the router.
func RegisterRoutes(router middleware.Engine) {
	router.POST("/ingest", Ingest)

	router.GET("/dumps", ListDumps)
	router.GET("/dumps/:id", GetDump)
	router.GET("/dumps/:id/suggestions", ListSuggestions)
	router.PUT("/dumps/:id/category", UpdateCategory)

	router.GET("/triage", Triage)

	router.GET("/resilience", BreakerStates)
	router.POST("/resilience/:service/reset", ResetBreaker)
}
