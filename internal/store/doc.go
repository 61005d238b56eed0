// Package store persists the review history log in SQLite.
//
// The serve command saves the full log after every change and seeds new
// sessions from it, so archived rounds survive restarts.
package store
