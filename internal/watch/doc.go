// Package watch holds the thread-watch pipeline: the collaborator interfaces,
// the error taxonomy shared across subsystems, and the Detector that sequences
// one check-and-exit cycle.
//
// A run loads the stored watermark, fetches the thread page, extracts the
// highest reply index, and when that index exceeds the watermark sends one
// webhook notification before persisting the new watermark. Notification is
// ordered before persistence so a crash between the two repeats the alert on
// the next run instead of losing it.
package watch
