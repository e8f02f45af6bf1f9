package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/cyclopcam/logs"
)

// Archive mirrors the predictions directory into a blob store, so that annotated
// artifacts outlive the local disk. The archive holds the latest artifact of each upload.
type Archive struct {
	Store  Storage
	Prefix string // Prepended to every object name, eg "predictions"
	log    logs.Log
}

func NewArchive(log logs.Log, store Storage, prefix string) *Archive {
	return &Archive{
		Store:  store,
		Prefix: prefix,
		log:    log,
	}
}

// ObjectName returns the name under which a local file is archived
func (a *Archive) ObjectName(localFile string) string {
	return path.Join(a.Prefix, filepath.Base(localFile))
}

// Put uploads localFile, overwriting any previous object of the same name.
// Returns the public URL of the object, or an empty string if the store has no public URLs.
func (a *Archive) Put(ctx context.Context, localFile string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", err
	}
	defer f.Close()
	name := a.ObjectName(localFile)
	if err := a.Store.Put(ctx, name, f); err != nil {
		return "", err
	}
	a.log.Infof("Archived %v to %v", filepath.Base(localFile), name)
	url, err := a.Store.URL(name)
	if err != nil {
		return "", nil
	}
	return url, nil
}

// Remove deletes the archived copy of localFile, if there is one.
// This is used when a new prediction produces no artifact, so that the archive
// does not keep serving the result of an older prediction.
func (a *Archive) Remove(ctx context.Context, localFile string) error {
	name := a.ObjectName(localFile)
	if err := a.Store.Delete(ctx, name); err != nil {
		return err
	}
	a.log.Infof("Removed stale archive object %v", name)
	return nil
}
