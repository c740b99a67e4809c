package lens

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/mod/modfile"
)

// backupFileSuffix marks the pristine copy written before an in-place rewrite.
// Its presence also marks a file as already instrumented.
const backupFileSuffix = ".bkp"

// TreeOptions configures InstrumentTree.
type TreeOptions struct {
	// Write rewrites eligible files in place, keeping a .bkp backup.
	Write bool
	// Diff produces a unified diff for each changed file.
	Diff bool
	// OutDir mirrors instrumented files into this directory instead of
	// rewriting in place.
	OutDir string
	// CacheMB is the instrumented-output cache budget in MB; zero disables.
	CacheMB int
}

// FileResult reports the instrumentation outcome for one file.
type FileResult struct {
	// Path is the file path relative to the tree root.
	Path string
	// Changed reports whether instrumentation modified the file.
	Changed bool
	// Output is the instrumented text (equal to the input when unchanged).
	Output string
	// Diff is the unified diff, populated only when TreeOptions.Diff is set.
	Diff string
}

// resultCache caches instrumented output keyed by source content hash, so
// re-instrumenting an unchanged tree skips parsing entirely.
type resultCache struct {
	cache *ristretto.Cache[string, string]
}

func newResultCache(maxMB int) (*resultCache, error) {
	if maxMB <= 0 {
		return &resultCache{}, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: int64(maxMB) * 1024, // ~10x expected entries at 100KB avg
		MaxCost:     int64(maxMB) << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("result cache init failed: %w", err)
	}
	return &resultCache{cache: cache}, nil
}

func (c *resultCache) get(key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.Get(key)
}

func (c *resultCache) set(key, value string) {
	if c.cache != nil {
		c.cache.Set(key, value, int64(len(value)))
		c.cache.Wait()
	}
}

func (c *resultCache) close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// cacheKey mixes the full engine configuration into the content hash so no
// option change can ever serve stale output.
func (e *Engine) cacheKey(content []byte) string {
	return strings.Join([]string{
		e.mode.String(),
		e.opts.CoroutineAlias,
		e.opts.YieldIdent,
		e.opts.HandleIdent,
		e.opts.FacilityAlias,
		e.opts.FacilityImportPath,
		bytesKey(content),
	}, ";")
}

// InstrumentFile instruments a single file and returns the result without
// writing anything.
func InstrumentFile(engine *Engine, path string) (FileResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, err
	}
	output, err := engine.InstrumentSource(filepath.Base(path), string(content))
	if err != nil {
		return FileResult{}, err
	}
	return FileResult{
		Path:    path,
		Changed: output != string(content),
		Output:  output,
	}, nil
}

// InstrumentTree instruments every .go file under the tree root (vendor,
// testdata, hidden and underscore directories excluded), in parallel. When a
// go.mod is present its module path is logged for context.
func InstrumentTree(engine *Engine, dir string, opts TreeOptions) ([]FileResult, error) {
	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		if mf, err := modfile.ParseLax("go.mod", data, nil); err == nil && mf.Module != nil {
			log.Printf("Instrumenting module %s (%s)", mf.Module.Mod.Path, dir)
		}
	}
	files, err := collectGoFiles(dir)
	if err != nil {
		return nil, err
	}

	cache, err := newResultCache(opts.CacheMB)
	if err != nil {
		return nil, err
	}
	defer cache.close()

	results := make([]FileResult, len(files))
	errGroup := ErrGroupLimitCPU()
	for i, relPath := range files {
		i, relPath := i, relPath
		errGroup.Go(func() error {
			result, err := instrumentTreeFile(engine, dir, relPath, opts, cache)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := errGroup.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func instrumentTreeFile(engine *Engine, dir, relPath string, opts TreeOptions, cache *resultCache) (FileResult, error) {
	fullPath := filepath.Join(dir, relPath)
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return FileResult{}, err
	}
	input := string(content)

	key := engine.cacheKey(content)
	output, ok := cache.get(key)
	if !ok {
		if output, err = engine.InstrumentSource(filepath.ToSlash(relPath), input); err != nil {
			return FileResult{}, err
		}
		cache.set(key, output)
	}

	result := FileResult{
		Path:    relPath,
		Changed: output != input,
		Output:  output,
	}
	if !result.Changed {
		return result, nil
	}
	if opts.Diff {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(input),
			B:        difflib.SplitLines(output),
			FromFile: relPath,
			ToFile:   relPath + " (instrumented)",
			Context:  2,
		}
		if text, err := difflib.GetUnifiedDiffString(diff); err == nil {
			result.Diff = text
		}
	}
	if opts.OutDir != "" {
		outPath := filepath.Join(opts.OutDir, relPath)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return FileResult{}, err
		} else if err := os.WriteFile(outPath, []byte(output), 0o644); err != nil {
			return FileResult{}, err
		}
	} else if opts.Write {
		if err := backupOrigFile(fullPath); err != nil {
			return FileResult{}, err
		} else if err := os.WriteFile(fullPath, []byte(output), 0o644); err != nil {
			return FileResult{}, err
		}
	}
	return result, nil
}

// RestoreTree undoes in-place instrumentation by moving .bkp backups over the
// instrumented files.
func RestoreTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasSuffix(path, backupFileSuffix) {
			return replaceFile(path, strings.TrimSuffix(path, backupFileSuffix))
		}
		return nil
	})
}

func collectGoFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if name == "vendor" || name == "testdata" ||
				strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		// a backup next to the file means it is already instrumented
		if FileExists(path + backupFileSuffix) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

// FileExists reports whether the named file exists.
func FileExists(filename string) bool {
	if _, err := os.Stat(filename); err != nil {
		return !os.IsNotExist(err)
	}
	return true
}

// backupOrigFile will copy the file to a .bkp file if one does not already exist.
var backupLock sync.Mutex

func backupOrigFile(path string) error {
	backupLock.Lock()
	defer backupLock.Unlock()
	bkpFile := path + backupFileSuffix
	if FileExists(bkpFile) {
		return nil
	}
	if err := CopyFile(path, bkpFile); err != nil {
		return fmt.Errorf("backup failure: %w", err)
	}
	return nil
}

func replaceFile(source, destination string) error {
	if _, err := os.Stat(destination); err == nil {
		if err = os.Remove(destination); err != nil {
			return err
		}
	}

	// Rename the source to the destination (requires same filesystem)
	return os.Rename(source, destination)
}

// CopyFile copies src to dst. If src is a symlink, it recreates the symlink at dst pointing to the same target.
// Otherwise, it copies the file's contents (using os.Create's default mode).
func CopyFile(src, dst string) (err error) {
	if info, err := os.Lstat(src); err != nil {
		return err
	} else if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
