package gateway

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// MailboxWatcher watches a spool directory for operator-dropped payload
// files (a prepared NOTE/ZAP JSON body) and turns each into a Request, a
// drop-a-file-to-send workflow offered as an alternative to the
// interactive CLI.
type MailboxWatcher struct {
	watcher  *fsnotify.Watcher
	requests chan<- Request
}

// WatchMailbox starts watching dir, pushing one Request per newly-created
// file onto requests. The file's extension (without the dot) is used as
// the request kind and its base name as the request ID.
func WatchMailbox(dir string, requests chan<- Request) (*MailboxWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("gateway: create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("gateway: watch %s: %w", dir, err)
	}
	mw := &MailboxWatcher{watcher: w, requests: requests}
	go mw.run()
	return mw, nil
}

func (mw *MailboxWatcher) run() {
	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			mw.handle(event.Name)
		case _, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (mw *MailboxWatcher) handle(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	kind := filepath.Ext(filepath.Base(path))
	if len(kind) > 0 {
		kind = kind[1:]
	}
	mw.requests <- Request{ID: filepath.Base(path), Kind: kind, Payload: data}
	os.Remove(path)
}

// Close stops the watcher.
func (mw *MailboxWatcher) Close() error { return mw.watcher.Close() }
