// Package tempreg replaces the original C++ process-wide temp-file registry
// and signal handler (original_source/utils/tempfile.hpp) with an explicit
// value passed to pipeline drivers, per spec.md DESIGN NOTES §9.
package tempreg

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ngram-lm/expgram/continuity"
	"k8s.io/klog/v2"
)

// Root tracks temp paths created by a single pipeline run so that a
// terminating signal, or an explicit Close, can reclaim them. Unlike the
// original's process-wide singleton, a Root is a normal value: create one
// per run, pass it down to drivers, and either Close it on success or let
// the signal handler drain it on abnormal termination.
type Root struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// New creates an empty Root.
func New() *Root {
	return &Root{paths: make(map[string]struct{})}
}

// Register records path for cleanup and returns it unchanged, so it can be
// used inline: f := root.Register(mkTempFile()).
func (r *Root) Register(path string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
	return path
}

// Forget removes path from the registry without deleting it, used once a
// temp file has been promoted to a permanent result.
func (r *Root) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

// Paths returns a snapshot of currently registered paths.
func (r *Root) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	return out
}

// Drain removes every registered path (files or directories) and clears the
// registry. Errors for individual paths are collected but do not stop the
// sweep; every error is returned together as a continuity.ErrArray.
func (r *Root) Drain() error {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	var failed continuity.ErrArray
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

var (
	registryMu sync.Mutex
	registered []*Root
	installed  bool
)

// track adds r to the process-wide list consulted by the signal handler.
// This is the one piece of unavoidable process-wide state: the signal
// handler itself cannot be parameterized per-run, so it must know which
// Roots are currently live. It holds no cleanup logic of its own — it only
// calls Root.Drain, keeping the actual temp-file bookkeeping on the value.
func track(r *Root) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registered = append(registered, r)
}

func untrack(r *Root) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i, other := range registered {
		if other == r {
			registered = append(registered[:i], registered[i+1:]...)
			break
		}
	}
}

// Track registers r with the process-wide signal handler installed by
// InstallSignalHandler, and returns a function that un-registers it. Call
// the returned function once r's run completes normally.
func Track(r *Root) (untrackFn func()) {
	track(r)
	return func() { untrack(r) }
}

// InstallSignalHandler installs a process-wide handler that drains every
// tracked Root before re-raising the original signal. Idempotent: calling it
// more than once is a no-op after the first call. Mirrors
// original_source/utils/tempfile.hpp's SIGHUP/INT/QUIT/ILL/ABRT/KILL/SEGV/
// TERM/BUS coverage.
func InstallSignalHandler() {
	registryMu.Lock()
	if installed {
		registryMu.Unlock()
		return
	}
	installed = true
	registryMu.Unlock()

	sigs := []os.Signal{
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGILL,
		syscall.SIGABRT, syscall.SIGTERM, syscall.SIGBUS, syscall.SIGSEGV,
		// SIGKILL cannot be caught by any process; included for parity with
		// the signal set named in the spec, but signal.Notify silently
		// ignores it.
		syscall.SIGKILL,
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		sig := <-ch
		registryMu.Lock()
		roots := append([]*Root(nil), registered...)
		registryMu.Unlock()

		for _, r := range roots {
			if err := r.Drain(); err != nil {
				klog.Warningf("tempreg: cleanup on signal %v failed: %v", sig, err)
			}
		}

		signal.Stop(ch)
		// Re-raise the original signal with default disposition so the
		// process terminates the way it would have without this handler.
		_ = syscall.Kill(syscall.Getpid(), sig.(syscall.Signal))
	}()
}
