package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/config"
	"github.com/sweeney/asterisk-callcenter/internal/engine"
	"github.com/sweeney/asterisk-callcenter/internal/httpapi"
	"github.com/sweeney/asterisk-callcenter/internal/publisher"
	"github.com/sweeney/asterisk-callcenter/internal/store"
	"github.com/sweeney/asterisk-callcenter/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "/etc/callcenterd/callcenterd.yaml", "Path to config file")
	flag.Parse()

	log := logger.New(os.Getenv("APP_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil && ctx.Err() == nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pg, err := store.OpenPostgres(ctx, cfg.Postgres.DSN, store.PoolConfig{
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	log.Info("postgres ready")

	pub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      1,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer pub.Close()
	log.Info("connected to MQTT broker", "broker", cfg.MQTT.Broker)

	var bopts []engine.BroadcasterOption
	if cfg.Redis.Addr != "" {
		snaps, err := store.OpenRedisSnapshots(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.MQTT.TopicPrefix)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer snaps.Close()
		bopts = append(bopts, engine.WithSnapshotSink(snaps))
		log.Info("redis snapshot store enabled", "addr", cfg.Redis.Addr)
	}

	broadcaster := engine.NewBroadcaster(pub, cfg.MQTT.TopicPrefix, log, bopts...)
	defer broadcaster.Close()

	writer := store.NewAsyncWriter(pg, log, 0)
	defer writer.Close()

	sess := &amiSession{log: log}
	eng := engine.New(
		engine.Config{
			GracePeriod:  cfg.Engine.GracePeriod,
			RecordingDir: cfg.Engine.RecordingDir,
			QueueNames:   cfg.Engine.QueueNames,
		},
		log, sess, writer, broadcaster,
	)
	go eng.Run(ctx)

	// Pick up shifts that were open when the previous process stopped.
	open, err := pg.OpenShifts(ctx)
	if err != nil {
		return fmt.Errorf("loading open shifts: %w", err)
	}
	eng.RestoreShifts(open)
	if len(open) > 0 {
		log.Info("restored open shifts", "count", len(open))
	}

	eng.StartPollers(ctx, cfg.Engine.QueuePollInterval, cfg.Engine.EndpointPollInterval)

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: httpapi.NewRouter(eng, log),
		}
		go func() {
			log.Info("http api listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http api", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	// AMI session loop: reconnect until the context ends.
	for {
		err := sess.runOnce(ctx, cfg, eng)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn("AMI session ended, reconnecting in 5s", "error", err)
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil
		}
	}
}

// amiSession is the engine's ActionSender across reconnects: actions sent
// while the link is down fail fast instead of blocking the dispatcher.
type amiSession struct {
	log *slog.Logger

	mu     sync.Mutex
	client *ami.Client
}

func (s *amiSession) Send(a ami.Action, cb ami.ResponseFunc) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return errors.New("AMI not connected")
	}
	return c.Send(a, cb)
}

func (s *amiSession) set(c *ami.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *amiSession) runOnce(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	s.log.Info("connecting to AMI", "addr", cfg.AMI.Addr())

	client, err := ami.Dial(ami.ClientOptions{
		Addr:     cfg.AMI.Addr(),
		Username: cfg.AMI.Username,
		Secret:   cfg.AMI.Secret,
	})
	if err != nil {
		return err
	}
	s.set(client)
	defer func() {
		s.set(nil)
		client.Close()
	}()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	s.log.Info("AMI authenticated, processing events")
	return client.Run(eng.HandleEvent)
}
