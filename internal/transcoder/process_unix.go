//go:build !windows

package transcoder

import (
	"os"
	"syscall"
)

func syscallTerm() os.Signal {
	return syscall.SIGTERM
}
