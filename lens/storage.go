package lens

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/mtraver/base91"

	"github.com/CoroLens/go-coro-lens/yieldtrace"
)

const debugStorage = false

// Storage defines persistence methods for recorded trace session blobs.
type Storage interface {
	SaveState(key string, blob []byte) error
	LoadState(key string) ([]byte, bool, error)
	DeleteState(key string) error
	// ListKeysPrefix returns all keys in the store that begin with the given prefix.
	ListKeysPrefix(prefix string) ([]string, error)
	// ListKeys returns all keys in the store.
	ListKeys() ([]string, error)
	Clear() error
	Close()
}

const sessionKeyPrefix = "trace;"

// session blob codec markers, first byte of every stored blob
const (
	sessionCodecSnappy = 's'
	sessionCodecZstd   = 'z'
)

// snappySessionLimit is the encoded batch size below which snappy is used;
// larger batches take zstd's better ratio.
const snappySessionLimit = 4 << 10

// SessionKey derives a compact stable storage key for a session batch label.
func SessionKey(label string) string {
	sha := sha1.Sum([]byte(label))
	return sessionKeyPrefix + base91.StdEncoding.EncodeToString(sha[:])
}

// compressSessionBlob prefixes the blob with its codec marker so readers do
// not depend on the writer's size threshold.
func compressSessionBlob(blob []byte) []byte {
	if len(blob) < snappySessionLimit {
		return append([]byte{sessionCodecSnappy}, SnappyCompress(nil, blob)...)
	}
	return append([]byte{sessionCodecZstd}, ZstdCompress(nil, blob)...)
}

func decompressSessionBlob(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty session blob")
	}
	switch blob[0] {
	case sessionCodecSnappy:
		return SnappyDecompress(nil, blob[1:])
	case sessionCodecZstd:
		return ZstdDecompress(nil, blob[1:])
	default:
		return nil, fmt.Errorf("unknown session codec marker %q", blob[0])
	}
}

// SaveSessions stores a batch of recorded sessions under the given label,
// msgpack-encoded and compressed.
func SaveSessions(store Storage, label string, sessions []yieldtrace.Session) error {
	blob, err := yieldtrace.EncodeSessions(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions failed: %w", err)
	}
	return store.SaveState(SessionKey(label), compressSessionBlob(blob))
}

// LoadSessions loads a batch of sessions stored by SaveSessions.
func LoadSessions(store Storage, label string) ([]yieldtrace.Session, bool, error) {
	blob, ok, err := store.LoadState(SessionKey(label))
	if err != nil || !ok {
		return nil, ok, err
	}
	raw, err := decompressSessionBlob(blob)
	if err != nil {
		return nil, true, fmt.Errorf("decompress sessions failed: %w", err)
	}
	sessions, err := yieldtrace.DecodeSessions(raw)
	return sessions, true, err
}

// LoadAllSessions loads every stored session batch.
func LoadAllSessions(store Storage) ([]yieldtrace.Session, error) {
	keys, err := store.ListKeysPrefix(sessionKeyPrefix)
	if err != nil {
		return nil, err
	}
	var all []yieldtrace.Session
	for _, key := range keys {
		blob, ok, err := store.LoadState(key)
		if err != nil {
			return nil, err
		} else if !ok {
			continue
		}
		raw, err := decompressSessionBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("decompress sessions failed: %w", err)
		}
		sessions, err := yieldtrace.DecodeSessions(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, sessions...)
	}
	return all, nil
}

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStorage returns an in-memory Storage implementation.
func NewMemStorage() Storage {
	return &memStorage{data: make(map[string][]byte)}
}

func (m *memStorage) SaveState(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), blob...) // copy the blob to avoid external mutation
	return nil
}

func (m *memStorage) LoadState(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (m *memStorage) DeleteState(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *memStorage) ListKeysPrefix(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStorage) ListKeys() ([]string, error) {
	return m.ListKeysPrefix("")
}

func (m *memStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.data)
	return nil
}

func (m *memStorage) Close() {
	// no resources to free
}

type badgerStorage struct {
	path string
	db   *badger.DB
}

// NewBadgerStorage opens a Badger-backed Storage. Session blobs are small, so
// the store is tuned for many small values rather than large payloads.
func NewBadgerStorage(path string, maxMemMB int) (Storage, error) {
	// ensure directory exists
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}

	clamp := func(val, lo, high int64) int64 {
		return min(max(val, lo), high)
	}
	memTableSize := clamp(int64(maxMemMB/4), 8, 64) << 20
	opts := badger.DefaultOptions(path).
		WithInMemory(false).
		WithDetectConflicts(true).
		WithChecksumVerificationMode(options.NoVerification).
		WithCompression(options.ZSTD).
		WithZSTDCompressionLevel(8).
		WithNumMemtables(2).
		WithMemTableSize(memTableSize).
		WithBaseTableSize(memTableSize). // one SST per flush, fewest compaction jobs
		WithBlockCacheSize(clamp(int64(maxMemMB/8), 2, 128) << 20).
		WithIndexCacheSize(clamp(int64(maxMemMB/4), 16, 128) << 20)

	if !debugStorage {
		opts = opts.
			WithLoggingLevel(badger.ERROR).
			WithMetricsEnabled(false)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage db failed: %w", err)
	}
	if debugStorage {
		go func() {
			for {
				time.Sleep(60 * time.Second)
				if db.IsClosed() {
					return
				}
				logMetrics := func(name string, metrics *ristretto.Metrics) {
					if metrics.Hits() != 0 || metrics.Misses() != 0 {
						log.Println(name + ": " + metrics.String())
					}
					metrics.Clear()
				}

				logMetrics("block", db.BlockCacheMetrics())
				logMetrics("index", db.IndexCacheMetrics())
			}
		}()
	}
	return &badgerStorage{path: path, db: db}, nil
}

func (b *badgerStorage) SaveState(key string, blob []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), blob)
	})
}

func (b *badgerStorage) LoadState(key string) ([]byte, bool, error) {
	var blob []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (b *badgerStorage) DeleteState(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *badgerStorage) ListKeysPrefix(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		itOpts.Prefix = []byte(prefix)
		it := txn.NewIterator(itOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *badgerStorage) ListKeys() ([]string, error) {
	return b.ListKeysPrefix("")
}

func (b *badgerStorage) Clear() error {
	return b.db.DropAll()
}

func (b *badgerStorage) Close() {
	if err := b.db.Close(); err != nil {
		log.Printf("%sFailed to close storage db: %v", ErrorLogPrefix, err)
	}
}
