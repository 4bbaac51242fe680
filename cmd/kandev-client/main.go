// Command kandev-client is a small interactive probe for a kandev backend:
// it connects, watches the user channel and one optional task, issues a
// task.list request, and logs every status transition until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/kdlbs/kandev-sub008/pkg/client"
	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

func main() {
	var (
		url          = flag.String("url", "ws://localhost:8080/ws", "backend WebSocket URL")
		taskID       = flag.String("task", "", "task id to subscribe to")
		reqTimeout   = flag.Duration("timeout", 5*time.Second, "default request timeout")
		maxAttempts  = flag.Int("reconnect-attempts", 10, "max reconnect attempts")
		initialDelay = flag.Duration("reconnect-delay", time.Second, "initial reconnect delay")
		maxDelay     = flag.Duration("reconnect-max-delay", 30*time.Second, "reconnect delay cap")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	c := client.New(*url,
		client.WithLogger(logger),
		client.WithDefaultRequestTimeout(*reqTimeout),
		client.WithReconnectPolicy(client.ReconnectPolicy{
			Enabled:      true,
			MaxAttempts:  *maxAttempts,
			InitialDelay: *initialDelay,
			MaxDelay:     *maxDelay,
			Multiplier:   1.5,
		}),
		client.WithStatusHandler(func(s client.Status) {
			logger.Info("connection status", "status", s.String())
		}),
	)
	defer c.Close()

	c.On("task.updated", func(env *wire.Envelope) {
		logger.Info("task updated", "payload", string(env.Payload))
	})
	c.On("user.notification", func(env *wire.Envelope) {
		logger.Info("user notification", "payload", string(env.Payload))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		// With reconnection enabled the supervisor keeps retrying in the
		// background, so a failed first dial is not fatal.
		logger.Warn("initial connection failed", "error", err)
	}

	releaseUser := c.SubscribeUser()
	defer releaseUser()
	if *taskID != "" {
		releaseTask := c.SubscribeTask(*taskID)
		defer releaseTask()
	}

	reqCtx, cancel := context.WithTimeout(ctx, *reqTimeout)
	tasks, err := client.GenericRequest[wire.TaskListResponse](c, reqCtx, wire.ActionTaskList, nil)
	cancel()
	if err != nil {
		logger.Error("task.list failed", "error", err)
	} else {
		for _, task := range tasks.Tasks {
			logger.Info("task", "id", task.ID, "title", task.Title, "status", task.Status)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	c.Disconnect()
}
