// +build linux

package libcgroup

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/devcg/devcg/libdevcg"
)

// watcher turns inotify IN_DELETE_SELF events on cgroup directories into
// destruction callbacks. Callbacks run on the watcher's reader goroutine,
// one at a time; the event is not considered delivered until the callback
// returns, which gives subscribers the synchronous-completion guarantee
// they need before the kernel can reuse the directory identity.
type watcher struct {
	fd  int
	log *logrus.Entry

	mu  sync.Mutex
	wds map[int32]watchEntry
}

type watchEntry struct {
	gid       libdevcg.GroupID
	onDestroy func(libdevcg.GroupID)
}

func newWatcher(log *logrus.Entry) (*watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "inotify_init")
	}

	w := &watcher{
		fd:  fd,
		log: log,
		wds: make(map[int32]watchEntry),
	}
	go w.run()

	return w, nil
}

func (w *watcher) add(path string, gid libdevcg.GroupID, onDestroy func(libdevcg.GroupID)) error {
	wd, err := unix.InotifyAddWatch(w.fd, path, unix.IN_DELETE_SELF)
	if err != nil {
		return errors.Wrapf(err, "inotify_add_watch %s", path)
	}

	w.mu.Lock()
	w.wds[int32(wd)] = watchEntry{gid: gid, onDestroy: onDestroy}
	w.mu.Unlock()

	w.log.Debugf("watching group %d (%s)", gid, path)
	return nil
}

func (w *watcher) run() {
	// Large enough for a burst of events; each is SizeofInotifyEvent plus
	// an optional name, and we watch directories only (no names).
	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(w.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < unix.SizeofInotifyEvent {
			// fd closed (shutdown) or unrecoverable read error.
			return
		}

		offset := 0
		for offset <= n-unix.SizeofInotifyEvent {
			ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(ev.Len)

			if ev.Mask&(unix.IN_DELETE_SELF|unix.IN_IGNORED) == 0 {
				continue
			}

			// IN_DELETE_SELF is followed by IN_IGNORED for the same
			// watch; dropping the entry on the first event keeps the
			// callback to exactly once.
			w.mu.Lock()
			entry, ok := w.wds[ev.Wd]
			if ok {
				delete(w.wds, ev.Wd)
			}
			w.mu.Unlock()

			if ok {
				w.log.Debugf("group %d destroyed", entry.gid)
				entry.onDestroy(entry.gid)
			}
		}
	}
}

func (w *watcher) close() error {
	return unix.Close(w.fd)
}
