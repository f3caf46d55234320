package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/broadcasters/noop"
	redisb "github.com/ankit2020bhagat/JobQueueSystem/broadcasters/redis"
	"github.com/ankit2020bhagat/JobQueueSystem/config"
	"github.com/ankit2020bhagat/JobQueueSystem/core"
	noopPub "github.com/ankit2020bhagat/JobQueueSystem/publishers/noop"
	"github.com/ankit2020bhagat/JobQueueSystem/publishers/rabbitmq"
	redisPub "github.com/ankit2020bhagat/JobQueueSystem/publishers/redis"
	"github.com/ankit2020bhagat/JobQueueSystem/registry"
	"github.com/ankit2020bhagat/JobQueueSystem/store/memory"
	"github.com/ankit2020bhagat/JobQueueSystem/store/sqlite"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	var store core.Store
	if cfg.StorePath != "" {
		store, err = sqlite.NewStore(cfg.StorePath)
		if err != nil {
			log.Fatal("Error opening store: ", err)
		}
	} else {
		store = memory.NewStore()
	}

	var publisher core.Publisher = noopPub.NewPublisher()
	var broadcaster core.Broadcaster = noop.NewBroadcaster()
	if cfg.RedisURI != "" {
		opts := redisPub.DefaultOptions()
		opts.URI = cfg.RedisURI
		rp := redisPub.NewPublisher(opts)
		if err := rp.Connect(ctx); err != nil {
			log.Fatal("Error connecting publisher: ", err)
		}
		publisher = rp

		bopts := redisb.DefaultOptions()
		bopts.URI = cfg.RedisURI
		rb := redisb.NewBroadcaster(bopts)
		if err := rb.Connect(ctx); err != nil {
			log.Fatal("Error connecting broadcaster: ", err)
		}
		broadcaster = rb
	}
	if cfg.AMQPURI != "" {
		opts := rabbitmq.DefaultOptions()
		opts.URI = cfg.AMQPURI
		ap := rabbitmq.NewPublisher(opts)
		if err := ap.Connect(ctx); err != nil {
			log.Fatal("Error connecting publisher: ", err)
		}
		publisher = ap
	}

	reg := registry.NewRegistry()
	registerDemoHandlers(reg)

	engine := core.NewEngine(store, publisher, broadcaster, reg, cfg.EngineOptions()...)

	if err := engine.Run(ctx); err != nil {
		log.Fatal("Error: ", err)
	}
}

// registerDemoHandlers wires the built-in example job types.
func registerDemoHandlers(reg *registry.Registry) {
	reg.Register("EMAIL", func(ctx context.Context, payload []byte) error {
		slog.Info("Sending email", "payload", string(payload))
		time.Sleep(2 * time.Second)
		return nil
	})
	reg.Register("DATA_PROCESSING", func(ctx context.Context, payload []byte) error {
		slog.Info("Processing data", "payload", string(payload))
		time.Sleep(5 * time.Second)
		return nil
	})
	reg.Register("REPORT_GENERATION", func(ctx context.Context, payload []byte) error {
		slog.Info("Generating report", "payload", string(payload))
		time.Sleep(8 * time.Second)
		return nil
	})
	reg.Register("IMAGE_PROCESSING", func(ctx context.Context, payload []byte) error {
		slog.Info("Processing image", "payload", string(payload))
		time.Sleep(3 * time.Second)
		return nil
	})
}
