//go:build !excludemain

package main

import (
	"context"

	"titanflow/internal/signals"
)

func init() {
	shutdownContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signals.NotifyContext(parent)
	}
}
