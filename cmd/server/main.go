package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"takeaway/internal/config"
	"takeaway/internal/idgen"
	"takeaway/internal/lock"
	"takeaway/internal/queue"
	"takeaway/internal/router"
	"takeaway/internal/service/order"
	"takeaway/internal/store"
	"takeaway/pkg/logger"
	rediskey "takeaway/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.AppConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 连接数据库，自动建表
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	// 2. Redis 可选：用户锁、限流、幂等、节点号分配
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	// 3. 订单号生成器：未指定 WORKER_ID 时租用节点号，租约丢失则停机，避免与他人撞号。
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	nodeID := cfg.WorkerID
	if nodeID < 0 {
		lease, err := rediskey.LeaseNodeID(ctx, rdb, idgen.MaxNodeID+1, cfg.NodeLeaseTTL)
		if err != nil {
			return fmt.Errorf("lease worker id: %w", err)
		}
		nodeID = lease.NodeID()

		leaseCtx, stopLease := context.WithCancel(context.Background())
		leaseDone := make(chan struct{})
		go func() {
			defer close(leaseDone)
			err := lease.Keep(leaseCtx, cfg.NodeLeaseTTL/3, func(err error) {
				log.Warn("node lease renew failed", "node_id", nodeID, "error", err)
			})
			if err != nil {
				log.Error("node lease lost, shutting down", "node_id", nodeID, "error", err)
				cancel()
			}
		}()
		// 最后执行：HTTP 已停止，不再生成新 ID。
		defer func() {
			stopLease()
			<-leaseDone
			releaseCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
			defer done()
			if err := lease.Release(releaseCtx); err != nil {
				log.Warn("node lease release failed", "node_id", nodeID, "error", err)
			}
		}()
	}
	ids, err := idgen.New(nodeID)
	if err != nil {
		return err
	}
	log.Info("id generator ready", "node_id", nodeID)

	// 4. 下单服务
	st := store.New(db)
	opts := []order.Option{
		order.WithSubmittedStatus(cfg.SubmittedStatus),
		order.WithTimeout(cfg.SubmitTimeout),
		order.WithLogger(log),
	}
	if rdb != nil {
		opts = append(opts, order.WithLocker(rediskey.NewUserLocker(rdb, cfg.SubmitLockTTL)))
	} else {
		log.Warn("REDIS_ADDR empty, using in-process user lock")
		opts = append(opts, order.WithLocker(lock.NewLocal()))
	}
	svc := order.New(st, ids, opts...)

	// 5. outbox relay：订单事件异步投递 Kafka
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := queue.NewRelay(st.Outbox(), producer, queue.RelayConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxAttempts:  cfg.OutboxMaxAttempts,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(relayCtx)
		}()
	} else {
		log.Warn("KAFKA_BROKERS empty, order events stay in outbox")
	}

	// 6. HTTP
	r := gin.New()
	r.Use(gin.LoggerWithWriter(os.Stdout), gin.Recovery())
	router.Setup(r, router.Deps{Orders: svc, DB: db, Redis: rdb, Config: cfg, Log: log})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			stopRelay()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	// 先停止接收新请求并等待进行中的下单结束，再停 relay。
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	stopRelay()
	wg.Wait()
	return err
}
