// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answercache

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
)

// badgerGateway stores answers in an embedded BadgerDB keyspace under
// "answer:" keys. IncrementUsage is a read-modify-write inside a single
// update transaction; Badger serializes conflicting transactions so the
// counter never loses increments.
type badgerGateway struct {
	db *badger.DB
}

// newBadgerGateway opens a BadgerDB at path, or in memory when path is
// empty. Badger's internal logging is disabled; storage problems surface
// as errors on the gateway operations instead.
func newBadgerGateway(path string) (*badgerGateway, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open answer cache: %w", err)
	}
	return &badgerGateway{db: db}, nil
}

func (b *badgerGateway) Lookup(ctx context.Context, fingerprint string) (*datatypes.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var answer *datatypes.Answer
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(answerKey(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			answer, err = decodeAnswer(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("lookup answer %s: %w", fingerprint, err)
	}
	return answer, nil
}

func (b *badgerGateway) Insert(ctx context.Context, answer *datatypes.Answer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("refusing to cache invalid answer: %w", err)
	}
	raw, err := encodeAnswer(answer)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(answerKey(answer.Fingerprint), raw)
	})
	if err != nil {
		return fmt.Errorf("insert answer %s: %w", answer.Fingerprint, err)
	}
	return nil
}

func (b *badgerGateway) IncrementUsage(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(answerKey(fingerprint))
		if err != nil {
			return err
		}
		var answer *datatypes.Answer
		err = item.Value(func(val []byte) error {
			answer, err = decodeAnswer(val)
			return err
		})
		if err != nil {
			return err
		}
		answer.UsageCount++
		raw, err := encodeAnswer(answer)
		if err != nil {
			return err
		}
		return txn.Set(answerKey(fingerprint), raw)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("increment usage %s: %w", fingerprint, err)
	}
	return nil
}

func (b *badgerGateway) Close() error {
	return b.db.Close()
}
