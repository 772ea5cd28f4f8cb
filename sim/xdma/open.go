package xdma

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrNotStream is returned by OpenDevice for a path that cannot carry a record stream.
var ErrNotStream = errors.New("xdma: not a character device, fifo or regular file")

// OpenDevice opens the card-to-host DMA channel, or any file or fifo holding
// a recorded stream. The descriptor stays owned by the runtime poller, so
// closing it unblocks a pending read on a character device or fifo.
func OpenDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("xdma: open %s: %w", path, err)
	}
	kind, err := streamKind(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xdma: %s: %w", path, err)
	}
	logrus.Infof("xdma: opened %s (%s)", path, kind)
	return f, nil
}

// streamKind stats the descriptor without taking it out of non-blocking mode.
func streamKind(f *os.File) (string, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return "", err
	}
	var st unix.Stat_t
	var statErr error
	if err := rc.Control(func(fd uintptr) {
		statErr = unix.Fstat(int(fd), &st)
	}); err != nil {
		return "", err
	}
	if statErr != nil {
		return "", fmt.Errorf("fstat: %w", statErr)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		return "character device", nil
	case unix.S_IFIFO:
		return "fifo", nil
	case unix.S_IFREG:
		return "recorded stream", nil
	default:
		return "", fmt.Errorf("%w (mode %#o)", ErrNotStream, st.Mode)
	}
}
