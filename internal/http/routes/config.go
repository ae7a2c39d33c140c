// Package routes provides shared route registration for the Prayerline API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, ensuring the document always matches the server.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/prayerline/internal/http/mw"
	"github.com/jmylchreest/prayerline/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Prayerline API", version.Get().Short())
	cfg.Info.Description = "Conversational prayer-request intake with candle checkout and post-payment offers."

	// Responses stay plain JSON for the chat widget.
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Admin API key. Send `Authorization: Bearer <ADMIN_API_KEY>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Session", Description: "Prayer request intake conversation", Extensions: map[string]any{"x-displayName": "Session"}},
		{Name: "Upsell", Description: "Post-payment offer chains", Extensions: map[string]any{"x-displayName": "Upsell"}},
		{Name: "Offers", Description: "Tier and upsell pricing", Extensions: map[string]any{"x-displayName": "Offers"}},
		{Name: "Admin", Description: "Fulfilment operations", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
