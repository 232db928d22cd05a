package flagstore

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

type snapshot struct {
	Flags map[string]Flag `json:"flags"`
}

func encodeSnapshot(flags map[string]Flag) ([]byte, error) {
	raw, err := json.Marshal(snapshot{Flags: flags})
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decodeSnapshot(data []byte) (map[string]Flag, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	if s.Flags == nil {
		s.Flags = map[string]Flag{}
	}
	return s.Flags, nil
}

func encodeIndex(hashes []string) ([]byte, error) {
	b, err := json.Marshal(hashes)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return b, nil
}

func decodeIndex(data []byte) ([]string, error) {
	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	return hashes, nil
}
