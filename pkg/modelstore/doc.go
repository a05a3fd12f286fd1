/*
Package modelstore persists trained automaton models in a SQLite database
under stable names, so a model can be trained once and reused by name from
the command line or the HTTP API.

The store keeps one row per model plus one row per transition, and rebuilds
a validated automaton.Automaton on load. All statements are prepared up
front; a Store is safe for concurrent use by multiple goroutines.
*/
package modelstore
