package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrattend/internal/config"
	"qrattend/internal/metrics"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes queued check-in confirmations and runs the daily
// attendance-shortage job.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	repo := notify.NewRepository(db.Client)
	shortage := notify.NewShortageJob(repo)

	// Run the shortage job once at startup, then on the configured
	// interval. The 7-day dedup window makes extra runs harmless.
	go func() {
		runShortage(ctx, shortage)
		ticker := time.NewTicker(cfg.ShortageInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runShortage(ctx, shortage)
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "confirmation" {
			continue
		}

		var conf notify.Confirmation
		if err := json.Unmarshal(msg.Body, &conf); err != nil {
			log.Printf("bad confirmation message: %v", err)
			continue
		}

		err := repo.Insert(ctx, notify.Notification{
			StudentID: conf.StudentID,
			Kind:      notify.KindConfirmation,
			Message:   "Attendance marked as " + conf.Status,
		})
		if err != nil {
			// Confirmations are best effort; the attendance record is
			// already committed.
			log.Printf("confirmation insert failed for session %s: %v", conf.SessionID, err)
			continue
		}
		metrics.NotificationsIssued.WithLabelValues(notify.KindConfirmation).Inc()
	}

	log.Println("worker stopped")
}

func runShortage(ctx context.Context, job *notify.ShortageJob) {
	issued, err := job.Run(ctx)
	if err != nil {
		log.Printf("shortage job failed: %v", err)
		return
	}
	for _, n := range issued {
		metrics.NotificationsIssued.WithLabelValues(n.Kind).Inc()
	}
	log.Printf("shortage job finished, issued %d notifications", len(issued))
}
