package queue

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"
)

// GenerateWorkerID builds the hostname_pid_randomsuffix identity a
// worker process registers under when it does not supply its own ID.
// The suffix comes from blake2b over the hostname, pid, and current
// time rather than crypto/rand, since collision resistance only needs
// to hold within one hostname+pid pair started at distinct times.
func GenerateWorkerID(hostname string, pid int) string {
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	seed := fmt.Sprintf("%s-%d-%d", hostname, pid, time.Now().UnixNano())
	sum := blake2b.Sum256([]byte(seed))
	return fmt.Sprintf("%s_%d_%x", hostname, pid, sum[:4])
}
