package agent

import (
	"log"
	"time"
)

func logRetry(stage string, err error, wait time.Duration) {
	log.Printf("🔁 %s failed, retrying in %s: %v", stage, wait.Round(time.Millisecond), err)
}

func logStoreError(ticketID, what string, err error) {
	log.Printf("⚠️ [%s] %s lookup failed: %v", ticketID, what, err)
}
