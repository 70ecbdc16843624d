package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"takeaway/internal/model"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	// DBDriver 取 sqlite 或 postgres；DBDSN 对 sqlite 是文件路径。
	DBDriver string
	DBDSN    string

	// RedisAddr 为空时不连接 Redis：改用进程内用户锁，关闭限流与幂等。
	RedisAddr string
	RedisDB   int

	// WorkerID < 0 表示启动时通过 Redis 租一个雪花节点号，租约按 NodeLeaseTTL 续期。
	WorkerID     int64
	NodeLeaseTTL time.Duration

	// Kafka 集群地址（逗号分隔）与 Topic；为空时不启动 outbox relay。
	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	// 下单接口限流
	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	SubmitLockTTL  time.Duration
	SubmitTimeout  time.Duration
	IdempotencyTTL time.Duration

	// SubmittedStatus 下单成功时写入的订单状态，默认待接单。
	SubmittedStatus model.OrderStatus

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:        getEnv("DB_DSN", "takeaway.db"),
		RedisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "takeaway-orders"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}
	// 未设置时走默认地址；显式设置为空字符串表示关闭。
	if _, ok := os.LookupEnv("REDIS_ADDR"); !ok {
		cfg.RedisAddr = "localhost:6379"
	}
	if _, ok := os.LookupEnv("KAFKA_BROKERS"); !ok {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	workerID, err := getEnvInt("WORKER_ID", -1)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WORKER_ID: %w", err)
	}
	if workerID > 1023 {
		return AppConfig{}, fmt.Errorf("WORKER_ID must be in [0, 1023] or -1")
	}
	if workerID < 0 && cfg.RedisAddr == "" {
		return AppConfig{}, fmt.Errorf("WORKER_ID must be set when REDIS_ADDR is empty")
	}
	cfg.WorkerID = int64(workerID)

	leaseTTLSec, err := getEnvPositive("NODE_LEASE_TTL_SEC", 30)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.NodeLeaseTTL = time.Duration(leaseTTLSec) * time.Second

	pollMS, err := getEnvPositive("OUTBOX_POLL_INTERVAL_MS", 1000)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.OutboxPollInterval = time.Duration(pollMS) * time.Millisecond

	if cfg.OutboxBatchSize, err = getEnvPositive("OUTBOX_BATCH_SIZE", 100); err != nil {
		return AppConfig{}, err
	}
	if cfg.OutboxMaxAttempts, err = getEnvPositive("OUTBOX_MAX_ATTEMPTS", 10); err != nil {
		return AppConfig{}, err
	}

	if cfg.SubmitRateLimit, err = getEnvPositive("SUBMIT_RATE_LIMIT", 5); err != nil {
		return AppConfig{}, err
	}
	rateWindowSec, err := getEnvPositive("SUBMIT_RATE_WINDOW_SEC", 1)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.SubmitRateWindow = time.Duration(rateWindowSec) * time.Second

	lockTTLSec, err := getEnvPositive("SUBMIT_LOCK_TTL_SEC", 15)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.SubmitLockTTL = time.Duration(lockTTLSec) * time.Second

	timeoutSec, err := getEnvPositive("SUBMIT_TIMEOUT_SEC", 10)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.SubmitTimeout = time.Duration(timeoutSec) * time.Second
	// 锁要覆盖整个下单流程，否则超时前锁就可能过期。
	if cfg.SubmitLockTTL < cfg.SubmitTimeout {
		return AppConfig{}, fmt.Errorf("SUBMIT_LOCK_TTL_SEC must be >= SUBMIT_TIMEOUT_SEC")
	}

	idemTTLHour, err := getEnvPositive("IDEMPOTENCY_TTL_HOUR", 24)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.IdempotencyTTL = time.Duration(idemTTLHour) * time.Hour

	status, err := getEnvInt("SUBMITTED_ORDER_STATUS", int(model.OrderStatusToBeConfirmed))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SUBMITTED_ORDER_STATUS: %w", err)
	}
	cfg.SubmittedStatus = model.OrderStatus(status)
	if !cfg.SubmittedStatus.Valid() {
		return AppConfig{}, fmt.Errorf("SUBMITTED_ORDER_STATUS %d is not a known order status", status)
	}

	shutdownSec, err := getEnvPositive("SHUTDOWN_TIMEOUT_SEC", 10)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.ShutdownTimeout = time.Duration(shutdownSec) * time.Second

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvPositive 同 getEnvInt，但要求结果 > 0。
func getEnvPositive(key string, fallback int) (int, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return n, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
