// Package service contains the business logic layer. Engines decide what a
// turn means; services persist it and run the side effects it asks for.
package service

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/prayerline/internal/auth"
	"github.com/jmylchreest/prayerline/internal/classifier"
	"github.com/jmylchreest/prayerline/internal/config"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/conversation"
	"github.com/jmylchreest/prayerline/internal/llm"
	"github.com/jmylchreest/prayerline/internal/notify"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/repository"
	"github.com/jmylchreest/prayerline/internal/upsell"
)

// Services holds all service instances.
type Services struct {
	Sessions   *SessionService
	Upsells    *UpsellService
	Payments   *PaymentService
	Intentions *IntentionService
	Storage    *StorageService
	Tokens     *auth.CheckoutTokens
	// Notify is nil when the sinks were supplied by the caller.
	Notify *notify.Dispatcher
}

// Deps are the collaborators the services are assembled from.
type Deps struct {
	Classifier classifier.Classifier
	Composer   conversation.Composer // nil uses the fixed templates
	Gateway    payment.Gateway
	Sinks      notify.Sinks
	Storage    *StorageService
}

// NewServices creates all service instances from configuration.
// The returned notification dispatcher must be started by the caller.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	cls, composer := newLanguageModels(cfg, logger)

	var gateway payment.Gateway = payment.Disabled{}
	if cfg.PaymentsEnabled() {
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Timeout:       cfg.PaymentTimeout,
		}, logger)
		logger.Info("stripe payments enabled", "currency", cfg.PaymentCurrency)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set - checkout and upsell charges are unavailable")
	}

	dispatcher, err := newDispatcher(cfg, storageSvc, logger)
	if err != nil {
		return nil, err
	}

	svcs := Assemble(cfg, repos, Deps{
		Classifier: cls,
		Composer:   composer,
		Gateway:    gateway,
		Sinks:      dispatcher,
		Storage:    storageSvc,
	}, logger)
	svcs.Notify = dispatcher
	return svcs, nil
}

// Assemble wires the services around the given collaborators.
func Assemble(cfg *config.Config, repos *repository.Repositories, deps Deps, logger *slog.Logger) *Services {
	if deps.Gateway == nil {
		deps.Gateway = payment.Disabled{}
	}
	if deps.Sinks == nil {
		deps.Sinks = notify.Nop{}
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewGuard(classifier.NewRules(), logger)
	}

	engine := conversation.New(deps.Classifier, deps.Composer, conversation.Config{
		DeepeningTurns:      cfg.DeepeningTurns,
		EscalationThreshold: cfg.EscalationThreshold,
		Currency:            cfg.PaymentCurrency,
	}, logger)
	upsells := upsell.New(deps.Classifier, cfg.PaymentCurrency, logger)

	tokens := auth.NewCheckoutTokens(cfg.JWTSecret, cfg.CheckoutTokenTTL)
	locks := newKeyedMutex()

	payments := NewPaymentService(repos, deps.Gateway, engine, tokens, deps.Sinks, locks, PaymentConfig{
		Currency:   cfg.PaymentCurrency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	}, logger)

	return &Services{
		Sessions:   NewSessionService(repos, engine, payments, tokens, deps.Sinks, locks, logger),
		Upsells:    NewUpsellService(repos, upsells, payments, deps.Sinks, locks, logger),
		Payments:   payments,
		Intentions: NewIntentionService(repos, logger),
		Storage:    deps.Storage,
		Tokens:     tokens,
	}
}

// newLanguageModels picks the classifier and composer for the configured
// mode. The guard runs crisis and abuse detection before any model call.
func newLanguageModels(cfg *config.Config, logger *slog.Logger) (classifier.Classifier, conversation.Composer) {
	if !cfg.UseLLM() {
		logger.Info("using rule-based classifier and template prayers")
		return classifier.NewGuard(classifier.NewRules(), logger), nil
	}

	client := llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Referer: cfg.BaseURL,
	}, logger)
	logger.Info("using LLM classifier",
		"provider", client.Provider(),
		"classifier_model", cfg.ClassifierModel,
		"composer_model", cfg.ComposerModel,
	)

	cls := classifier.NewGuard(classifier.NewLLM(client, cfg.ClassifierModel, cfg.ClassifierTimeout, logger), logger)
	composer := conversation.NewLLMComposer(client, cfg.ComposerModel, cfg.ComposerTimeout, logger)
	return cls, composer
}

// newDispatcher builds the notification sinks. Unconfigured webhook sinks are
// skipped; the audit sink logs only when object storage is disabled.
func newDispatcher(cfg *config.Config, storageSvc *StorageService, logger *slog.Logger) (*notify.Dispatcher, error) {
	var backends notify.Backends

	if cfg.EmailListWebhookURL != "" {
		list, err := notify.NewWebhookSink("email_list", cfg.EmailListWebhookURL, cfg.EmailListWebhookSecret, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create email list sink: %w", err)
		}
		backends.List = list
	}
	if cfg.AdAttributionURL != "" {
		ads, err := notify.NewWebhookSink("ad_attribution", cfg.AdAttributionURL, cfg.AdAttributionSecret, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ad attribution sink: %w", err)
		}
		backends.Ads = ads
	}

	var writer notify.ObjectWriter
	if storageSvc.IsEnabled() {
		writer = storageSvc
	}
	backends.Audit = notify.NewAuditSink(writer, logger)

	return notify.NewDispatcher(notify.Config{
		Concurrency: cfg.NotifyConcurrency,
		QueueSize:   cfg.NotifyQueueSize,
		MaxAttempts: constants.NotifyMaxAttempts,
		BackoffUnit: constants.NotifyBackoffUnit,
	}, backends, logger), nil
}
