// Package tools defines the capability table handed to the completion
// provider: named, schema-described wallet actions the model may invoke
// mid-generation. The table is built once at startup and never mutated;
// concrete actions live in the transfer, swap, and price subpackages.
package tools
