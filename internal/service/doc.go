// Package service contains the application services of the reminder
// pipeline: occurrence generation for recurring tasks, the duplicate guard
// that makes reminder side effects effectively exactly-once, and the
// reminder service that turns a due trigger into delivered content.
package service
