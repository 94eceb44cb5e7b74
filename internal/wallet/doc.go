// Package wallet provides the local EVM signing wallet backing the agent's
// tool set. It owns the private key material and exposes only address
// derivation and signing.
package wallet
