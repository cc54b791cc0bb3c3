package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/config"
	"github.com/printlink/print-platform/internal/db"
	"github.com/printlink/print-platform/internal/models"
	"github.com/printlink/print-platform/internal/notify"
	"github.com/printlink/print-platform/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	repo := chat.NewRepo(gdb)
	directory := models.NewDirectory(gdb)
	svc := chat.NewService(repo, directory, directory, nil, nil, cfg.SessionTTL)

	tokens := notify.NewTokenStore(gdb)
	sender := notify.NewSender(notify.NewExpoClient(cfg.ExpoPushURL), tokens)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	// separate channel for retry publishing so it never competes with the
	// consumer's flow control
	pubCh, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit publish channel: %v", err)
	}
	defer pubCh.Close()

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d sweep=%s", cfg.RabbitQueue, concurrency, cfg.SweepInterval)

	// periodic expiry sweep
	go runSweep(ctx, svc, cfg.SweepInterval)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var n notify.Notification
				if err := json.Unmarshal(d.Body, &n); err != nil || n.RecipientID == 0 {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := sender.Deliver(ctx, &n); err != nil {
					log.Printf("worker=%d deliver recipient=%s:%d cost=%s err=%v",
						workerID, n.RecipientKind, n.RecipientID, time.Since(start), err)

					// transient failure: park it on the retry queue with a
					// delay; after enough attempts let it fall to the DLQ
					if rabbitmq.DeliveryRetries(d) >= rabbitmq.MaxDeliveryAttempts {
						_ = d.Nack(false, false)
						continue
					}
					if err := rabbitmq.PublishRetry(ctx, pubCh, cfg.RabbitQueue, d); err != nil {
						log.Printf("worker=%d retry publish: %v", workerID, err)
						_ = d.Nack(false, false)
						continue
					}
					_ = d.Ack(false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed recipient=%s:%d err=%v", workerID, n.RecipientKind, n.RecipientID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// runSweep closes expired sessions on a fixed interval. The lazy check on
// each send already rejects messages to an expired session; the sweep only
// settles status for reporting.
func runSweep(ctx context.Context, svc *chat.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpired(ctx)
			if err != nil {
				log.Printf("sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep: expired %d chat sessions", n)
			}
		}
	}
}
