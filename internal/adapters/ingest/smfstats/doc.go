// Package smfstats talks to a forum's built in statistics action.
//
// One GET per month: action=stats, xml=1, expand=YYYYMM. The XML reply carries one
// <days> element per day of the expanded month with the counters as attributes.
// Counters are passed through as the forum rendered them.
package smfstats
