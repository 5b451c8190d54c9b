package service

import "time"

// Backoff returns the retry delay after the given attempt count:
// min(300, 2^max(1, attempts)) seconds.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	secs := 1 << attempts
	if secs > maxBackoffSeconds || attempts > 8 {
		secs = maxBackoffSeconds
	}
	return time.Duration(secs) * time.Second
}
