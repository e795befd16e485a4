package vault

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gravitational/trace"
)

// debounceDelay is the pause after the last queued filesystem event
// before Reload is invoked, giving a writing process time to finish its
// rename.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads a Vault whenever another process writes its backing
// file. It watches the file's parent directory, since editors and this
// package's own saveVaultFile commonly write a temp file and rename it
// into place rather than modifying the target path directly.
type Watcher struct {
	vault *Vault
	fsw   *fsnotify.Watcher
	stop  chan struct{}
	done  chan struct{}
}

// Watch starts a background goroutine watching v's vault file
// directory and calling v.Reload() on every debounced Create/Write
// event. Call Stop to shut it down.
func Watch(v *Vault) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, trace.Wrap(err, "failed to create file watcher")
	}

	dir := filepath.Dir(v.VaultPath())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, trace.Wrap(err, "failed to watch vault directory")
	}

	w := &Watcher{
		vault: v,
		fsw:   fsw,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.run()

	log.WithField("dir", dir).Info("watching vault directory for changes")
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	defer w.fsw.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				if !debounce.Stop() {
					<-debounce.C
				}
				debounce.Reset(debounceDelay)
			}

		case <-debounceFired(debounce):
			debounce = nil
			if err := w.vault.Reload(); err != nil {
				log.WithError(err).Warn("vault reload failed")
			} else {
				log.Info("vault reloaded from disk")
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("file watcher error")

		case <-w.stop:
			log.Info("vault watcher stopped")
			return
		}
	}
}

// debounceFired returns t.C, or a nil channel (which blocks forever in
// a select) when t hasn't been armed yet.
func debounceFired(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Stop requests the watcher goroutine to exit and waits for it to do
// so.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}
