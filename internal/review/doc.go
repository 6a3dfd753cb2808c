// Package review routes scored results to an automated or manual quality
// decision. A Gate turns each quality report into approve, reject, manual
// review, or escalation, balances manual work across a reviewer pool, and
// records one immutable decision per review item.
package review
