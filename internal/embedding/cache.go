package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"intellidoc/internal/helper"
	"intellidoc/internal/models"
)

// CachingEmbedder memoizes vectors by model and text. The in-memory LRU sits in front of an
// optional badger store that survives restarts.
type CachingEmbedder struct {
	next   models.Embedder
	model  string
	mem    *lru.Cache[string, []float32]
	disk   *badger.DB
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingEmbedder wraps next. size <= 0 disables the LRU; an empty dir disables badger.
func NewCachingEmbedder(next models.Embedder, model string, size int, dir string) (*CachingEmbedder, error) {
	c := &CachingEmbedder{next: next, model: model}
	if size > 0 {
		mem, err := lru.New[string, []float32](size)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		c.mem = mem
	}
	if dir != "" {
		db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
		if err != nil {
			return nil, fmt.Errorf("%w: embedding cache: %v", models.ErrStoreUnavailable, err)
		}
		c.disk = db
	}
	return c, nil
}

func (c *CachingEmbedder) Close() error {
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

// Stats returns hit and miss counts.
func (c *CachingEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachingEmbedder) key(text string) string {
	return c.model + ":" + helper.SHA256Hex([]byte(text))
}

func (c *CachingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.get(c.key(t)); ok {
			out[i] = v
			c.hits.Add(1)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	c.misses.Add(int64(len(missTexts)))

	vecs, err := c.next.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.put(c.key(missTexts[j]), vecs[j])
	}
	return out, nil
}

func (c *CachingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.get(k); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(k, v)
	return v, nil
}

func (c *CachingEmbedder) get(key string) ([]float32, bool) {
	if c.mem != nil {
		if v, ok := c.mem.Get(key); ok {
			return v, true
		}
	}
	if c.disk == nil {
		return nil, false
	}
	var raw []byte
	err := c.disk.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			log.Warn().Err(err).Msg("embedding cache read failed")
		}
		return nil, false
	}
	v := decodeVector(raw)
	if c.mem != nil {
		c.mem.Add(key, v)
	}
	return v, true
}

func (c *CachingEmbedder) put(key string, v []float32) {
	if c.mem != nil {
		c.mem.Add(key, v)
	}
	if c.disk == nil {
		return
	}
	err := c.disk.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeVector(v))
	})
	if err != nil {
		log.Warn().Err(err).Msg("embedding cache write failed")
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
