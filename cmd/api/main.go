package main

import (
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/config"
	"github.com/printlink/print-platform/internal/db"
	"github.com/printlink/print-platform/internal/httpapi"
	"github.com/printlink/print-platform/internal/models"
	"github.com/printlink/print-platform/internal/notify"
	"github.com/printlink/print-platform/internal/presence"
	"github.com/printlink/print-platform/internal/store/rabbitmq"
	"github.com/printlink/print-platform/internal/ws"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := models.AutoMigrate(gdb); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	registry := presence.NewRegistry(rdb)
	hub := ws.NewHub()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	dispatcher := notify.NewDispatcher(registry, pub)
	directory := models.NewDirectory(gdb)
	repo := chat.NewRepo(gdb)
	chatSvc := chat.NewService(repo, directory, directory, hub, dispatcher, cfg.SessionTTL)

	gateway := ws.NewGateway(hub, chatSvc, registry, directory, cfg.JWTSecret)
	tokens := notify.NewTokenStore(gdb)

	r := httpapi.NewRouter(gdb, cfg, chatSvc, gateway, registry, tokens)

	log.Printf("api listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
