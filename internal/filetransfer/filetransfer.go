// Package filetransfer implements C6: splitting a byte source into
// fixed-size chunks, producing an AEAD-sealed FILE_META envelope plus per-chunk
// FILE_CHUNK envelopes via C5, and reassembling them back into a typed blob
// with gap/duplicate/count checking (spec.md §4.6).
package filetransfer

import (
	"encoding/json"
	"sort"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/envelope"
	"e2eecore/pkg/wire"
)

// MinChunkSize and MaxChunkSize bound the fixed chunk size of spec.md §6
// (64 KiB–256 KiB).
const (
	MinChunkSize = 64 * 1024
	MaxChunkSize = 256 * 1024
	MaxFileSize  = 100 * 1024 * 1024
)

// ByteSource is the streaming accessor spec.md §4.6 requires in place of a
// full in-memory buffer: callers hand over size plus a windowed accessor.
type ByteSource interface {
	Size() int64
	Slice(offset, length int64) ([]byte, error)
}

// ProgressFunc reports (chunksDone, totalChunks, bytesPerSec, etaSec) during
// an encrypt pass, per spec.md §4.6.
type ProgressFunc func(chunksDone, totalChunks int, bytesPerSec float64, etaSec float64)

// Blob is the reassembled, decrypted output of a successful Decrypt call.
type Blob struct {
	Bytes    []byte
	Filename string
	Mimetype string
	Size     int64
}

// fileMeta mirrors wire.FileMeta's FILE_META fields as the JSON payload
// sealed inside the FILE_META envelope's ciphertext.
type fileMeta struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Mimetype    string `json:"mimetype"`
	TotalChunks int    `json:"totalChunks"`
}

// Encrypt implements the encrypt path of spec.md §4.6: a FILE_META envelope
// followed by one FILE_CHUNK envelope per chunk, each independently sealed
// with its own IV and tag.
func Encrypt(ks envelope.KeyStore, seqMgr *envelope.SequenceManager, sessionID, senderID, receiverID string, src ByteSource, filename, mimetype string, chunkSize int, nowMs int64, progress ProgressFunc) (wire.Envelope, []wire.Envelope, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return wire.Envelope{}, nil, coreerr.New(coreerr.KindIntegrity)
	}
	size := src.Size()
	if size > MaxFileSize {
		return wire.Envelope{}, nil, coreerr.New(coreerr.KindIntegrity)
	}

	totalChunks := int((size + int64(chunkSize) - 1) / int64(chunkSize))
	if size == 0 {
		totalChunks = 0
	}

	meta := fileMeta{Filename: filename, Size: size, Mimetype: mimetype, TotalChunks: totalChunks}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return wire.Envelope{}, nil, err
	}
	metaEnv, err := envelope.Seal(ks, seqMgr, sessionID, senderID, receiverID, metaJSON, nowMs)
	if err != nil {
		return wire.Envelope{}, nil, err
	}
	metaEnv.Type = wire.EnvelopeFileMeta
	metaEnv.Meta = &wire.FileMeta{
		Filename: filename, Size: size, Mimetype: mimetype, TotalChunks: totalChunks,
	}

	chunks := make([]wire.Envelope, 0, totalChunks)
	var bytesDone int64
	start := time.Now()
	for idx := 0; idx < totalChunks; idx++ {
		offset := int64(idx) * int64(chunkSize)
		length := int64(chunkSize)
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		data, err := src.Slice(offset, length)
		if err != nil {
			return wire.Envelope{}, nil, err
		}
		chunkEnv, err := envelope.Seal(ks, seqMgr, sessionID, senderID, receiverID, data, nowMs)
		if err != nil {
			return wire.Envelope{}, nil, err
		}
		chunkEnv.Type = wire.EnvelopeFileChunk
		chunkEnv.Meta = &wire.FileMeta{ChunkIndex: idx, TotalChunks: totalChunks}
		chunks = append(chunks, chunkEnv)

		bytesDone += int64(len(data))
		if progress != nil {
			var bps, eta float64
			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				bps = float64(bytesDone) / elapsed
				if bps > 0 {
					eta = float64(size-bytesDone) / bps
				}
			}
			progress(idx+1, totalChunks, bps, eta)
		}
	}

	return metaEnv, chunks, nil
}

// ErrMissingChunks and ErrIndexMismatch name the two reassembly failure
// modes of spec.md §4.6; both classify as coreerr.KindIntegrity.
var (
	ErrMissingChunks = coreerr.New(coreerr.KindIntegrity)
	ErrIndexMismatch = coreerr.New(coreerr.KindIntegrity)
)

// Decrypt implements the reassembly path of spec.md §4.6: decrypt the
// FILE_META envelope, sort the chunk envelopes by index, verify the index
// set is exactly [0, totalChunks) with no gaps or duplicates, decrypt each
// chunk independently, and concatenate in order.
func Decrypt(ks envelope.KeyStore, metaEnv wire.Envelope, chunkEnvs []wire.Envelope, receiverUserID string, nowMs int64) (Blob, error) {
	metaPlain, err := envelope.Open(ks, metaEnv, receiverUserID, nowMs)
	if err != nil {
		return Blob{}, err
	}
	var meta fileMeta
	if err := json.Unmarshal(metaPlain, &meta); err != nil {
		return Blob{}, coreerr.Wrap(coreerr.KindIntegrity, err)
	}

	if len(chunkEnvs) != meta.TotalChunks {
		return Blob{}, ErrMissingChunks
	}

	for _, env := range chunkEnvs {
		if env.Meta == nil {
			return Blob{}, ErrIndexMismatch
		}
	}
	sorted := make([]wire.Envelope, len(chunkEnvs))
	copy(sorted, chunkEnvs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Meta.ChunkIndex < sorted[j].Meta.ChunkIndex
	})

	seen := make(map[int]bool, len(sorted))
	for _, env := range sorted {
		idx := env.Meta.ChunkIndex
		if idx < 0 || idx >= meta.TotalChunks || seen[idx] {
			return Blob{}, ErrIndexMismatch
		}
		seen[idx] = true
	}

	out := make([]byte, 0, meta.Size)
	for _, env := range sorted {
		plain, err := envelope.Open(ks, env, receiverUserID, nowMs)
		if err != nil {
			return Blob{}, err
		}
		out = append(out, plain...)
	}

	return Blob{Bytes: out, Filename: meta.Filename, Mimetype: meta.Mimetype, Size: meta.Size}, nil
}
