package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/navlock/internal/navlock/domain"
	"github.com/haukened/navlock/internal/navlock/gateways/wire"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
)

var (
	bucketRules  = []byte("rules")  // id → encoded rule
	bucketOwners = []byte("owners") // id → 'h' + indexed host
	bucketHosts  = []byte("hosts")  // host 0x00 id → 1
	bucketMeta   = []byte("meta")

	keyGeneration = []byte("generation")
	keyUpdated    = []byte("updated")
)

// boltStore implements ruleengine.Store using bbolt.
type boltStore struct {
	db    *bbolt.DB
	codec wire.RuleCodec
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// Rules are stored in the declarativeNetRequest JSON shape.
func New(path string) (ruleengine.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRules, bucketOwners, bucketHosts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, codec: wire.NewDNRCodec()}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func idKey(id int) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}

func hostKey(host string, id int) []byte {
	k := make([]byte, 0, len(host)+5)
	k = append(k, host...)
	k = append(k, 0)
	return append(k, idKey(id)...)
}

// Replace removes and adds rules in a single bbolt transaction. Adding an ID
// that is present after the removals fails with domain.ErrDuplicateRuleID and
// rolls the whole transaction back.
func (s *boltStore) Replace(remove []int, add []ruleengine.IndexedRule, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rules := tx.Bucket(bucketRules)
		owners := tx.Bucket(bucketOwners)
		hosts := tx.Bucket(bucketHosts)

		for _, id := range remove {
			k := idKey(id)
			if owner := owners.Get(k); len(owner) > 0 {
				if err := hosts.Delete(hostKey(string(owner[1:]), id)); err != nil {
					return err
				}
			}
			if err := owners.Delete(k); err != nil {
				return err
			}
			if err := rules.Delete(k); err != nil {
				return err
			}
		}

		for _, ir := range add {
			k := idKey(ir.Rule.ID)
			if rules.Get(k) != nil {
				return fmt.Errorf("rule %d: %w", ir.Rule.ID, domain.ErrDuplicateRuleID)
			}
			data, err := s.codec.EncodeRule(ir.Rule)
			if err != nil {
				return err
			}
			if err := rules.Put(k, data); err != nil {
				return err
			}
			if err := owners.Put(k, append([]byte{'h'}, ir.Host...)); err != nil {
				return err
			}
			if err := hosts.Put(hostKey(ir.Host, ir.Rule.ID), []byte{1}); err != nil {
				return err
			}
		}

		return bumpMeta(tx.Bucket(bucketMeta), updatedUnix)
	})
}

func bumpMeta(meta *bbolt.Bucket, updatedUnix int64) error {
	var gen uint64
	if v := meta.Get(keyGeneration); len(v) == 8 {
		gen = binary.BigEndian.Uint64(v)
	}
	gbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(gbuf, gen+1)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := meta.Put(keyGeneration, gbuf); err != nil {
		return err
	}
	return meta.Put(keyUpdated, ubuf)
}

// RulesForHost returns rules indexed under host by ascending ID. The empty
// host selects rules that apply to every host.
func (s *boltStore) RulesForHost(host string) ([]domain.CompiledRule, error) {
	var out []domain.CompiledRule
	err := s.db.View(func(tx *bbolt.Tx) error {
		rules := tx.Bucket(bucketRules)
		prefix := append([]byte(host), 0)
		c := tx.Bucket(bucketHosts).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			if len(id) != 4 {
				continue
			}
			r, err := s.decode(rules.Get(id))
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Hosts returns every non-empty indexed host once.
func (s *boltStore) Hosts() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = indexedHosts(tx)
		return err
	})
	return out, err
}

// indexedHosts walks the host index. Keys for one host are contiguous since
// the 0x00 separator sorts before any host byte.
func indexedHosts(tx *bbolt.Tx) ([]string, error) {
	var out []string
	last := ""
	err := tx.Bucket(bucketHosts).ForEach(func(k, _ []byte) error {
		i := bytes.IndexByte(k, 0)
		if i <= 0 {
			return nil
		}
		if h := string(k[:i]); h != last {
			out = append(out, h)
			last = h
		}
		return nil
	})
	return out, err
}

// All returns every stored rule by ascending ID.
func (s *boltStore) All() ([]domain.CompiledRule, error) {
	var out []domain.CompiledRule
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(_, v []byte) error {
			r, err := s.decode(v)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) decode(v []byte) (domain.CompiledRule, error) {
	if v == nil {
		return domain.CompiledRule{}, fmt.Errorf("index references a missing rule")
	}
	return s.codec.DecodeRule(v)
}

func (s *boltStore) Stats() ruleengine.StoreStats {
	st := ruleengine.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		st.Rules = uint64(tx.Bucket(bucketRules).Stats().KeyN)
		if hosts, err := indexedHosts(tx); err == nil {
			st.Hosts = uint64(len(hosts))
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyGeneration); len(v) == 8 {
			st.Generation = binary.BigEndian.Uint64(v)
		}
		if v := meta.Get(keyUpdated); len(v) == 8 {
			st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return st
}
