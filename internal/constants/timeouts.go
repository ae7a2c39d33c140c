package constants

import "time"

// Notification delivery retry configuration.
const (
	// NotifyMaxAttempts is the number of delivery attempts per sink event.
	NotifyMaxAttempts = 3

	// NotifyBackoffUnit is multiplied by attempt² between attempts (1s, 4s).
	NotifyBackoffUnit = time.Second

	// NotifyDeliveryTimeout bounds a single outbound sink request.
	NotifyDeliveryTimeout = 10 * time.Second
)

// Turn handling.
const (
	// TurnTimeout bounds one whole conversation turn, including the classifier,
	// composer and gateway calls it makes.
	TurnTimeout = 45 * time.Second

	// MaxMessageLength is the longest user message accepted by the API.
	MaxMessageLength = 2000

	// OwnPrayerMinWords is the shortest text accepted as a prayer the
	// visitor wrote. The keyword classifier and the engine share it.
	OwnPrayerMinWords = 8
)

// HTTP limits.
const (
	// GlobalIPRateLimitPerMinute caps requests from one client IP.
	GlobalIPRateLimitPerMinute = 60

	// SessionTurnRateLimitPerMinute caps turns against one session id across IPs.
	SessionTurnRateLimitPerMinute = 20

	// MaxConcurrentRequests is the chi Throttle limit.
	MaxConcurrentRequests = 100

	// MaxRequestBodyBytes bounds JSON request bodies.
	MaxRequestBodyBytes = 1 << 20

	// MaxWebhookBodyBytes bounds payment webhook payloads.
	MaxWebhookBodyBytes = 64 << 10
)
