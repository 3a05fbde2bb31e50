// Package types defines the domain types shared by the portwatch server
// engine and the operator CLI: portfolios, issues, reservations, the error
// taxonomy returned by every engine operation, and the injectable clock.
package types
