// Package events defines the task-lifecycle event family and the
// publish/subscribe contracts this core consumes.
//
// Events are the only way state enters or leaves the pipeline: the CRUD
// layer publishes task.created/updated/deleted/completed events, the
// consumer reacts to them, and new occurrences and dead letters are
// published back. The event ID doubles as the idempotency key, so payloads
// are immutable once published.
//
// The bus itself is an external collaborator; only Publisher and Subscriber
// are defined here, along with an in-memory implementation used for wiring
// and tests.
package events
