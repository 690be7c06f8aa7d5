package repo

import (
	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	"github.com/ngram-lm/expgram/errs"
)

// Watcher watches a repository's root prop.list for external mutation,
// for long-lived query-server processes: if something re-runs the build
// pipeline underneath an already-loaded Engine, the in-memory model is
// silently stale until the process restarts. Watcher only logs — it does
// not reload or otherwise touch the Engine, since an in-flight query may
// be mid-walk over the old arrays.
type Watcher struct {
	w *fsnotify.Watcher
}

// WatchHeader starts watching dir's prop.list. Callers should Close the
// returned Watcher when the repository is no longer in use.
func WatchHeader(dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.New(errs.IOError, "WatchHeader", err)
	}
	path := New(dir).RootPropList()
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, errs.New(errs.IOError, "WatchHeader", err)
	}

	watcher := &Watcher{w: w}
	go watcher.run(path)
	return watcher, nil
}

func (watcher *Watcher) run(path string) {
	for {
		select {
		case event, ok := <-watcher.w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				klog.Warningf("repository %s was modified on disk after loading; a served query.Engine is now stale", path)
			}
		case err, ok := <-watcher.w.Errors:
			if !ok {
				return
			}
			klog.Warningf("watching %s: %v", path, err)
		}
	}
}

// Close stops the watcher.
func (watcher *Watcher) Close() error {
	return watcher.w.Close()
}
