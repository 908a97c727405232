package auth

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// KeyWatcher reloads an HMACVerifier's signing secret whenever the
// secret file changes on disk, so keys can rotate without a restart.
// The parent directory is watched rather than the file itself because
// most deployment tooling replaces the file atomically.
type KeyWatcher struct {
	path     string
	verifier *HMACVerifier
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
}

// NewKeyWatcher loads the secret at path into verifier and prepares a
// watcher for subsequent changes. Call Start to begin watching.
func NewKeyWatcher(path string, verifier *HMACVerifier, logger *slog.Logger) (*KeyWatcher, error) {
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	verifier.SetSecret(bytes.TrimSpace(secret))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &KeyWatcher{
		path:     path,
		verifier: verifier,
		logger:   logger,
		watcher:  watcher,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for changes to the secret file.
func (kw *KeyWatcher) Start() error {
	if err := kw.watcher.Add(filepath.Dir(kw.path)); err != nil {
		return err
	}
	go kw.watchLoop()
	kw.logger.Info("auth: watching signing secret", "path", kw.path)
	return nil
}

// Stop stops watching. Safe to call once after Start.
func (kw *KeyWatcher) Stop() error {
	close(kw.done)
	return kw.watcher.Close()
}

func (kw *KeyWatcher) watchLoop() {
	var pending <-chan time.Time
	for {
		select {
		case <-kw.done:
			return
		case event, ok := <-kw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(kw.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(kw.debounce)
			}
		case <-pending:
			pending = nil
			kw.reload()
		case err, ok := <-kw.watcher.Errors:
			if !ok {
				return
			}
			kw.logger.Error("auth: secret watcher error", "error", err)
		}
	}
}

func (kw *KeyWatcher) reload() {
	secret, err := os.ReadFile(kw.path)
	if err != nil {
		// Keep the previous secret; a torn rotation should not lock
		// every authentication out.
		kw.logger.Error("auth: failed to reload signing secret", "path", kw.path, "error", err)
		return
	}
	kw.verifier.SetSecret(bytes.TrimSpace(secret))
	kw.logger.Info("auth: signing secret reloaded", "path", kw.path)
}
