package result

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalnine/matbench/internal/artifact"
)

// ErrNotFound is returned by Load when the run directory has no cache file.
var ErrNotFound = errors.New("cache file not found")

// CacheCodec encodes the Results of a run directory into its cache file.
type CacheCodec interface {
	Encode(w io.Writer, r *Results) error
	Decode(rd io.Reader, r *Results) error
}

// MsgpackCodec is the default codec. Map keys are sorted so that the same
// Results always produce the same bytes.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(w io.Writer, r *Results) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(r)
}

func (MsgpackCodec) Decode(rd io.Reader, r *Results) error {
	return msgpack.NewDecoder(rd).Decode(r)
}

// Cache reads and writes cache.pickle files.
type Cache struct {
	Codec CacheCodec
}

var defaultCache = &Cache{Codec: MsgpackCodec{}}

// LoadCache loads the cache of dirname with the msgpack codec.
func LoadCache(dirname string) (*Results, error) {
	return defaultCache.Load(dirname)
}

// SaveCache saves r into dirname with the msgpack codec.
func SaveCache(dirname string, r *Results) error {
	return defaultCache.Save(dirname, r)
}

func (c *Cache) codec() CacheCodec {
	if c == nil || c.Codec == nil {
		return MsgpackCodec{}
	}
	return c.Codec
}

// Load returns the cached Results of dirname. A missing file is reported as
// ErrNotFound; a corrupt one as a decode error, never as a miss. The
// TestConfig accessor of the returned object is nil.
func (c *Cache) Load(dirname string) (*Results, error) {
	path := filepath.Join(dirname, artifact.CacheFilename)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	defer f.Close()

	var r Results
	if err := c.codec().Decode(bufio.NewReader(f), &r); err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w", path, err)
	}
	r.normalizeTimes()
	return &r, nil
}

// Save writes r to the cache file of dirname. The TestConfig accessor is
// detached while encoding and put back before Save returns, whatever the
// outcome, so r stays usable by the caller.
func (c *Cache) Save(dirname string, r *Results) error {
	if tc := r.Always.TestConfig; tc != nil {
		get := tc.Get
		tc.Get = nil
		defer func() { tc.Get = get }()
	}

	tmp, err := os.CreateTemp(dirname, ".cache-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := c.codec().Encode(w, r); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dirname, artifact.CacheFilename)); err != nil {
		return fmt.Errorf("installing cache: %w", err)
	}
	return nil
}

// normalizeTimes puts decoded timestamps back in UTC; the codec restores
// them in the local zone.
func (r *Results) normalizeTimes() {
	if se := r.Once.TestStartEnd; se != nil {
		se.Start = se.Start.UTC()
		se.End = se.End.UTC()
	}
	if r.LTS != nil {
		r.LTS.Metadata.Start = r.LTS.Metadata.Start.UTC()
		r.LTS.Metadata.End = r.LTS.Metadata.End.UTC()
	}
}
