package analytics

import (
	"fmt"
	"os"
	"time"
)

// NewConsumerID returns a consumer name for the worker's Redis consumer
// group: host, pid and start time, unique per process.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
