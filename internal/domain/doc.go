// Package domain holds the core types and repository interfaces shared by
// every layer. It has no dependencies on adapters or transport code.
package domain
