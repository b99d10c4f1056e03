package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"booq/app/server"
	"booq/loader/service"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal("error loading configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := server.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal("error opening store: ", err)
	}

	a, ag, _ := server.NewAnalyzer(cfg, st, nil)
	if !ag.Configured() {
		log.Println("LLM_URL or LLM_MODEL not set, files will only be indexed")
	}

	if err := service.New(cfg.Loader, cfg.StoragePath, st, a).Run(ctx); err != nil {
		log.Printf("inbox service failed: %v", err)
	}

	log.Println("Closing store...")
	closeStore()
}
