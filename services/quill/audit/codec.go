// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// encodeRecord serializes r with msgpack and compresses it with zstd.
func encodeRecord(r Record) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}
	raw, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// decodeRecord reverses encodeRecord.
func decodeRecord(data []byte) (Record, error) {
	if err := initCodec(); err != nil {
		return Record{}, fmt.Errorf("init codec: %w", err)
	}
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return Record{}, fmt.Errorf("decompress record: %w", err)
	}
	var r Record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}
