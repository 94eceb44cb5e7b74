// Package chain houses blockchain connectivity utilities: the RPC client the
// wallet tools share, a narrow backend interface so tests can substitute the
// node, and the YAML token registry mapping symbols to ERC-20 addresses.
package chain
