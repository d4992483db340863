package routerconfig

import (
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher re-reads a topology or names file whenever it changes on disk
// and hands the raw bytes to onChange. This is how a long-running node
// picks up an edited topology without restarting — not something the
// spec's static loaders do themselves, but the teacher's
// cmd/dtn-tool/exchange.go already shows the fsnotify idiom for watching
// filesystem state this codebase otherwise treats as load-once.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	onChange func([]byte)
	stop     chan struct{}
}

// NewWatcher starts watching path; onChange is invoked with the file's new
// contents after each write event. Errors reading the file are logged and
// skipped rather than propagated, since a transient partial write should
// not crash the node.
func NewWatcher(path string, onChange func([]byte)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, path: path, onChange: onChange, stop: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			data, err := os.ReadFile(w.path)
			if err != nil {
				log.WithError(err).WithField("path", w.path).Warn("routerconfig: failed to re-read watched file")
				continue
			}
			w.onChange(data)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).WithField("path", w.path).Warn("routerconfig: watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.stop)
	w.watcher.Close()
}
