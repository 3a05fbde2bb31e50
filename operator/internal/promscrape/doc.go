// Package promscrape reads the server's /metrics endpoint for the
// `portwatchctl metrics` command.
//
// Fetch performs a plain GET and decodes the Prometheus text exposition
// with expfmt into client_model metric families. Summarize folds the
// portwatch_* families into a Summary: reservation churn, band counts,
// degraded reads, alert fires and websocket clients.
package promscrape
