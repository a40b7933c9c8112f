//go:build excludemain

package main

import "context"

// Coverage builds (-tags=excludemain) never install signal handlers.
func init() {
	shutdownContext = context.WithCancel
}
