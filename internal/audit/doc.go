// Package audit publishes wallet tool invocations to a RabbitMQ queue so
// that executed on-chain actions leave an externally consumable trail.
// Publishing is best effort: failures are logged and never interrupt the
// conversation.
package audit
