// Package async runs functions in the background and collects their
// results through typed futures.
//
// Tracker groups fire-and-forget jobs (such as notification delivery) so
// that shutdown code and tests can wait for them to drain.
package async
