package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	chatcmder "github.com/vibin/derma-chat/cmd/dermachat/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chatcmder.NewChatCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
