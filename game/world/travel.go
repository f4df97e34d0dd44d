package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kasuganosora/arenabot/resource"
)

// Checksum identifies the content of a level. Travel matrices cached
// under one checksum are only reused for identical level data.
func Checksum(ld *resource.LevelData) (string, error) {
	raw, err := json.Marshal(ld)
	if err != nil {
		return "", fmt.Errorf("world: checksum %s: %w", ld.Name, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func travelKey(name, checksum string) string {
	return "arenabot:travel:" + name + ":" + checksum
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeTravel packs a region travel matrix.
func EncodeTravel(times [][]float64) ([]byte, error) {
	raw, err := msgpack.Marshal(times)
	if err != nil {
		return nil, fmt.Errorf("world: encode travel matrix: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// DecodeTravel unpacks a matrix written by EncodeTravel.
func DecodeTravel(data []byte) ([][]float64, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("world: decompress travel matrix: %w", err)
	}
	var times [][]float64
	if err := msgpack.Unmarshal(raw, &times); err != nil {
		return nil, fmt.Errorf("world: decode travel matrix: %w", err)
	}
	return times, nil
}
