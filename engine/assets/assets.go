package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/monkey/engine/core"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrEmptyAsset    = errors.New("asset is empty")
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeModel
	AssetTypeConfig
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager reads files below an assets root and, when watching, reports
// which indexed assets changed on disk.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan string
}

func NewAssetManager(root string) (*AssetManager, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "assets root %q", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf("assets root %q is not a directory", root)
	}

	am := &AssetManager{
		root:    root,
		assets:  make(map[string]AssetInfo),
		loaders: make(map[AssetType]Loader),
		changes: make(chan string, 16),
		done:    make(chan struct{}),
	}
	am.registerLoader(AssetTypeShader, &ShaderLoader{})
	am.registerLoader(AssetTypeModel, &BinaryLoader{})
	am.registerLoader(AssetTypeConfig, &BinaryLoader{})

	if err := am.index(); err != nil {
		return nil, err
	}
	return am, nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) index() error {
	return filepath.Walk(am.root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// Watch starts reporting changes of indexed assets on Changes.
func (am *AssetManager) Watch() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	if am.fsnotify != nil {
		return nil
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create asset watcher")
	}
	am.fsnotify = fsWatch
	if err := am.watchRecursive(am.root); err != nil {
		return err
	}
	go am.start()
	return nil
}

// Changes delivers the asset relative path of every created or modified
// asset. Events are dropped when nobody drains the channel.
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

func (am *AssetManager) Close() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	if am.fsnotify == nil {
		close(am.changes)
	}
	return nil
}

// ReadFile returns the content of an asset given its path relative to the
// assets root. Missing and empty files are errors.
func (am *AssetManager) ReadFile(name string) ([]byte, error) {
	path := filepath.Join(am.root, filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrAssetNotFound, "%s", name)
		}
		return nil, errors.Wrapf(err, "read asset %s", name)
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrEmptyAsset, "%s", name)
	}

	am.mutex.Lock()
	if info, ok := am.assets[name]; ok {
		info.LastLoaded = time.Now()
		am.assets[name] = info
	}
	am.mutex.Unlock()
	return data, nil
}

// Load an asset using the loader of its type
func (am *AssetManager) LoadAsset(name string) (*Asset, error) {
	assetType := determineAssetType(name)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, errors.Newf("no loader registered for asset %s", name)
	}
	data, err := am.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return loader.Load(name, data)
}

// Lookup returns what the manager knows about an indexed asset.
func (am *AssetManager) Lookup(name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[name]
	return info, ok
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Has(fsnotify.Create) {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
				if name, ok := am.handleFileEvent(e.Name); ok {
					am.notify(name)
				}
			}
			if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			return
		}
	}
}

func (am *AssetManager) notify(name string) {
	select {
	case am.changes <- name:
	default:
		core.LogDebug("asset change dropped: %s", name)
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(path string) string {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (string, bool) {
	name := am.relative(path)
	assetType := determineAssetType(name)
	if assetType == AssetTypeNone {
		return "", false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[name]
	info.Path = name
	info.Type = assetType
	am.assets[name] = info
	return name, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, am.relative(path))
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return AssetTypeShader
	case ".obj", ".mtl":
		return AssetTypeModel
	case ".toml":
		return AssetTypeConfig
	default:
		return AssetTypeNone
	}
}
