// Package apod defines the Astronomy Picture of the Day data model and
// resolves request options into the calendar dates that must be fetched.
//
// Dates are normalized to midnight UTC of the requested calendar day so that
// the yyMMdd page names built from them do not depend on the server timezone.
package apod
