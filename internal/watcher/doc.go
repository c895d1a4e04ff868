// Package watcher feeds an inbox directory into the knowledge base.
//
// Files with a configured extension that are created or rewritten under the
// inbox are debounced, read, and added as documents with their path as the
// "source" metadata. fsnotify is used when available; polling covers
// filesystems where it is not (network mounts, some container volumes).
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Debounce: 500 * time.Millisecond})
//	if err != nil {
//	    return err
//	}
//	in := watcher.NewIngester(svc, w, watcher.IngestOptions{Extensions: []string{".txt", ".md"}})
//	return in.Run(ctx, "inbox")
package watcher
