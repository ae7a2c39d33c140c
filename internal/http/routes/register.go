package routes

import (
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/prayerline/internal/http/mw"
	"github.com/jmylchreest/prayerline/internal/models"
)

// PaymentWebhookPath is the raw webhook route.
const PaymentWebhookPath = "/api/v1/webhook/payment"

// upsellChains maps route prefixes to chains.
var upsellChains = []struct {
	prefix string
	chain  models.UpsellChain
}{
	{"/api/v1/upsell1", models.UpsellChainOne},
	{"/api/v1/upsell2", models.UpsellChainTwo},
}

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.PublicGet(api, "/api/v1/offers", h.ListOffers,
		mw.WithTags("Offers"),
		mw.WithSummary("List tiers and upsell offers"),
		mw.WithOperationID("listOffers"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// --- Session ---
	mw.PublicPost(api, "/api/v1/session/start", h.Session.StartSession,
		mw.WithTags("Session"),
		mw.WithSummary("Start a session"),
		mw.WithOperationID("startSession"),
		mw.WithErrors(http.StatusServiceUnavailable))
	mw.PublicGet(api, "/api/v1/session/{id}", h.Session.GetSession,
		mw.WithTags("Session"),
		mw.WithSummary("Get session state"),
		mw.WithOperationID("getSession"),
		mw.WithErrors(http.StatusNotFound))
	mw.PublicPost(api, "/api/v1/session/{id}/message", h.Session.SendMessage,
		mw.WithTags("Session"),
		mw.WithSummary("Send a message"),
		mw.WithOperationID("sendMessage"),
		mw.WithErrors(http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable))
	mw.PublicPost(api, "/api/v1/session/{id}/bucket", h.Session.SelectBucket,
		mw.WithTags("Session"),
		mw.WithSummary("Select a prayer category"),
		mw.WithOperationID("selectBucket"),
		mw.WithErrors(http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable))
	mw.PublicPost(api, "/api/v1/session/{id}/checkout", h.Session.Checkout,
		mw.WithTags("Session"),
		mw.WithSummary("Select a tier and open checkout"),
		mw.WithOperationID("checkout"),
		mw.WithErrors(http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable))
	mw.PublicGet(api, "/api/v1/checkout/return", h.Session.CheckoutReturn,
		mw.WithTags("Session"),
		mw.WithSummary("Resume after checkout"),
		mw.WithOperationID("checkoutReturn"),
		mw.WithErrors(http.StatusNotFound))

	// --- Upsell chains ---
	for _, c := range upsellChains {
		n := strconv.Itoa(int(c.chain))
		name := "Upsell" + n
		mw.PublicPost(api, c.prefix+"/{id}/start", h.Upsell.Start(c.chain),
			mw.WithTags("Upsell"),
			mw.WithSummary("Start offer chain "+n),
			mw.WithOperationID("start"+name),
			mw.WithErrors(http.StatusNotFound, http.StatusPreconditionFailed))
		mw.PublicPost(api, c.prefix+"/{id}/action", h.Upsell.Action(c.chain),
			mw.WithTags("Upsell"),
			mw.WithSummary("Answer the current offer"),
			mw.WithOperationID("act"+name),
			mw.WithErrors(http.StatusNotFound, http.StatusPreconditionFailed, http.StatusConflict))
		mw.PublicGet(api, c.prefix+"/{id}", h.Upsell.State(c.chain),
			mw.WithTags("Upsell"),
			mw.WithSummary("Get offer chain state"),
			mw.WithOperationID("get"+name),
			mw.WithErrors(http.StatusNotFound, http.StatusPreconditionFailed))
	}

	// =========================================================================
	// Admin Routes (require the admin bearer key)
	// =========================================================================

	mw.AdminPost(api, "/api/v1/intentions/{id}/delivered", h.Intention.MarkDelivered,
		mw.WithTags("Admin"),
		mw.WithSummary("Mark an intention delivered"),
		mw.WithOperationID("markIntentionDelivered"),
		mw.WithErrors(http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict))
}

// RegisterRaw mounts handlers that bypass huma.
func RegisterRaw(r chi.Router, h *Handlers) {
	if h.PaymentWebhook == nil {
		return
	}
	r.Post(PaymentWebhookPath, h.PaymentWebhook)
}
