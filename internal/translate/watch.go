// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package translate

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// Watch reloads the rule list whenever the config file at path is
// rewritten, until the returned stop function is called. The directory
// is watched rather than the file so atomic replace-by-rename still
// triggers a reload.
func (r *Rules) Watch(path string) (func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				rules, err := ReadConfig(path)
				if err != nil {
					log.Error("reloading %v: %v", path, err)
					continue
				}

				log.Info("reloaded %v rules from %v", len(rules), path)
				r.Set(rules)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watching %v: %v", path, err)
			}
		}
	}()

	return w.Close, nil
}
