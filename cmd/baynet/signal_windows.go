//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals stops a blocking graph server on Ctrl+C.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
