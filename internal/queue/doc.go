// Package queue runs units of work strictly in FIFO order, one at a time,
// on independent named channels. Each channel owns a single worker goroutine
// and reports the start and end of every entry through hooks.
package queue
