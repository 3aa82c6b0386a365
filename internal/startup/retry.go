package startup

import (
	"fmt"
	"time"

	"github.com/sessiond/internal/logger"
)

var (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// retry повторяет attempt с экспоненциальной паузой, пока не истечёт maxWait.
// logPrefix добавляется к сообщениям лога (например "sessiond: ").
func retry(what string, maxWait time.Duration, logPrefix string, attempt func() error) error {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for n := 1; ; n++ {
		err := attempt()
		if err == nil {
			if n > 1 {
				logger.Infof("%s%s connected after %d attempts", logPrefix, what, n)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s%s connect failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
