package gorollup

import (
	"os"
)

var DefaultLogger Logger

// SetLogger set a logger instance for GoRollup
func SetLogger(logger Logger) {
	DefaultLogger = logger
}

func init() {
	DefaultLogger = NewLogger(os.Stdout, Info)
}

// DefaultCollectorPoolSize default number of StatsTask run concurrently by CollectStats
const DefaultCollectorPoolSize = 16

var collectorPool = newTaskPool(DefaultCollectorPoolSize)

// SetMaxRunningCollectors set max number of StatsTask run concurrently by CollectStats
func SetMaxRunningCollectors(size int) {
	collectorPool.SetMaxSize(size)
}
