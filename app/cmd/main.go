package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"booq/app/server"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal("error loading configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.NewServer(cfg)
	if err := s.Run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Println("Received shutdown signal, server is down")
}
