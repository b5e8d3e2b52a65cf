// Package watcher triggers index rebuilds when source files change.
//
// Changes are detected with fsnotify, or by polling where fsnotify cannot
// be used (network mounts, some container volumes). Events are filtered by
// the index extension and exclusion rules, debounced into batches, and each
// batch results in at most one rebuild:
//
//	w, err := watcher.New(watcher.Options{Roots: roots, Extensions: exts}, logger)
//	if err != nil {
//	    return err
//	}
//	go w.Start(ctx)
//	r := watcher.NewReindexer(w.Events(), svc.Reindex, logger)
//	r.Run(ctx)
package watcher
