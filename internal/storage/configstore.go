package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/converge/internal/codec"
	"github.com/yndnr/converge/internal/core/domain"
)

// Key layout of the configuration store.
const (
	keyCurrent       = "config/current"
	keyHistoryPrefix = "config/history/"
)

// revisionHeaderSize is seq (8) + saved-at unix nanos (8).
const revisionHeaderSize = 16

// ConfigStore persists the desired configuration on a KVEngine: the
// current revision under one key plus an append-only history.
//
// Values are a 16-byte header (sequence, save time) followed by a
// codec.Deployment record.
type ConfigStore struct {
	kv KVEngine
}

// NewConfigStore wraps kv.
func NewConfigStore(kv KVEngine) *ConfigStore {
	return &ConfigStore{kv: kv}
}

// LoadCurrent returns the latest saved revision, or nil if nothing was
// ever saved.
func (s *ConfigStore) LoadCurrent(ctx context.Context) (*domain.Revision, error) {
	data, err := s.kv.Get(ctx, []byte(keyCurrent))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrStorage.Wrap(err)
	}
	return decodeRevision(data)
}

// Append stores rev as both the current revision and a history entry in
// one transaction.
func (s *ConfigStore) Append(ctx context.Context, rev *domain.Revision) error {
	data, err := encodeRevision(rev)
	if err != nil {
		return err
	}
	err = s.kv.SetBatch(ctx, []Entry{
		{Key: []byte(keyCurrent), Value: data},
		{Key: historyKey(rev.Seq), Value: data},
	})
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	return nil
}

// History returns every saved revision, oldest first.
func (s *ConfigStore) History(ctx context.Context) ([]*domain.Revision, error) {
	var (
		revs    []*domain.Revision
		scanErr error
	)
	err := s.kv.Scan(ctx, []byte(keyHistoryPrefix), func(key, value []byte) bool {
		rev, err := decodeRevision(value)
		if err != nil {
			scanErr = fmt.Errorf("%s: %w", key, err)
			return false
		}
		revs = append(revs, rev)
		return true
	})
	if err != nil {
		return nil, domain.ErrStorage.Wrap(err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return revs, nil
}

// historyKey zero-pads seq so key order is numeric order.
func historyKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyHistoryPrefix, seq))
}

func encodeRevision(rev *domain.Revision) ([]byte, error) {
	record, err := codec.Deployment.Encode(rev.Deployment)
	if err != nil {
		return nil, err
	}
	out := make([]byte, revisionHeaderSize, revisionHeaderSize+len(record))
	binary.BigEndian.PutUint64(out[0:8], rev.Seq)
	binary.BigEndian.PutUint64(out[8:16], uint64(rev.SavedAt.UnixNano()))
	return append(out, record...), nil
}

func decodeRevision(data []byte) (*domain.Revision, error) {
	if len(data) < revisionHeaderSize {
		return nil, domain.ErrStorage.WithDetails(fmt.Sprintf("revision record too short: %d bytes", len(data)))
	}
	d, err := codec.Deployment.Decode(data[revisionHeaderSize:])
	if err != nil {
		return nil, err
	}
	return &domain.Revision{
		Seq:        binary.BigEndian.Uint64(data[0:8]),
		SavedAt:    time.Unix(0, int64(binary.BigEndian.Uint64(data[8:16]))),
		Deployment: d,
	}, nil
}
