// Package model defines the page structures shared by the parser, the
// navigation engine and the renderers.
//
// A Page is the parsed form of a success response: an ordered list of
// typed lines plus the links found in them. Link IDs are dense and start
// at 1, so the n-th link on a page is always Links[n-1].
//
// The types carry JSON tags because the fetch command can print a page as
// JSON.
package model
