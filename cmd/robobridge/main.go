// Command robobridge relays drive commands from WebSocket clients to a
// serial-connected robot and streams its sensor readings back.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
