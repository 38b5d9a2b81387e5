//go:build windows

package transcoder

import "os"

func syscallTerm() os.Signal {
	return os.Kill
}
