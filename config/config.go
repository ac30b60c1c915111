package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	RedisAddress  string
	RedisPassword string
	Namespace     string

	MinTickDuration  time.Duration
	RunnerWorkers    int
	ProcessorWorkers int

	DefaultCPULimit float64
	CPUBucketCap    float64
	HeapLimitMB     uint64

	HistoryChunkSize uint64

	StatsdAddress string
	AdminPort     string
}

func GetConfig() Config {
	return Config{
		RedisAddress:  getEnv("BURROW_REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("BURROW_REDIS_PASSWORD", ""),
		Namespace:     getEnv("BURROW_NAMESPACE", "burrow"),

		MinTickDuration:  time.Duration(getEnvInt("BURROW_MIN_TICK_MS", 1000)) * time.Millisecond,
		RunnerWorkers:    getEnvInt("BURROW_RUNNER_WORKERS", 2),
		ProcessorWorkers: getEnvInt("BURROW_PROCESSOR_WORKERS", 2),

		DefaultCPULimit: float64(getEnvInt("BURROW_DEFAULT_CPU_LIMIT_MS", 100)),
		CPUBucketCap:    float64(getEnvInt("BURROW_CPU_BUCKET_CAP_MS", 10000)),
		HeapLimitMB:     uint64(getEnvInt("BURROW_HEAP_LIMIT_MB", 256)),

		HistoryChunkSize: uint64(getEnvInt("BURROW_HISTORY_CHUNK_SIZE", 20)),

		StatsdAddress: getEnv("BURROW_STATSD_ADDRESS", ""),
		AdminPort:     getEnv("BURROW_ADMIN_PORT", "4040"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
