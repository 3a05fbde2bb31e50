// Package alerts evaluates rules against the classified board and delivers
// webhook notifications to Teams, Slack or generic HTTP targets when a rule
// fires or resolves for a portfolio.
package alerts
