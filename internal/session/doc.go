// Package session implements the interactive conversation loop: an
// append-only transcript, prompt composition with a pluggable history
// window, and the read/generate/display cycle that drives the console agent.
package session
