// Package wire holds the wire-format types shared by the envelope codec,
// the key exchange protocol, and the relay directory client: the closed JWK
// record, the KEP message union, and the Envelope union of spec.md §3.
//
// Binary fields are plain []byte with Go's default JSON encoding, which
// base64-encodes []byte automatically — the same mechanism pkg/models in the
// teacher relies on for fields like PeerPublicKey and Nonce.
package wire

import "time"

// PublicJWK is the closed four-field EC public key record spec.md §3 and §9
// mandate: kty, crv, x, y and nothing else. Any other field present on
// import is dropped by decoding into this type; any of these four missing
// is a structural error the caller must reject.
type PublicJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// EnvelopeType distinguishes the three envelope kinds of spec.md §3.
type EnvelopeType string

const (
	EnvelopeMSG       EnvelopeType = "MSG"
	EnvelopeFileMeta  EnvelopeType = "FILE_META"
	EnvelopeFileChunk EnvelopeType = "FILE_CHUNK"
)

// FileMeta is the single meta sub-record spec.md §3 carries under one "meta"
// field for both FILE_META and FILE_CHUNK envelopes; which fields are
// meaningful is discriminated by the enclosing Envelope's Type rather than
// by a second wire field: FILE_META populates
// Filename/Size/Mimetype/TotalChunks, FILE_CHUNK populates
// ChunkIndex/TotalChunks.
type FileMeta struct {
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Mimetype    string `json:"mimetype,omitempty"`
	TotalChunks int    `json:"totalChunks"`
	ChunkIndex  int    `json:"chunkIndex,omitempty"`
}

// Envelope is the authenticated message/file envelope of spec.md §3. Meta is
// nil for MSG and populated for FILE_META / FILE_CHUNK.
type Envelope struct {
	Type       EnvelopeType `json:"type"`
	SessionID  string       `json:"sessionId"`
	Sender     string       `json:"sender"`
	Receiver   string       `json:"receiver"`
	Ciphertext []byte       `json:"ciphertext"`
	IV         []byte       `json:"iv"`
	AuthTag    []byte       `json:"authTag"`
	Timestamp  int64        `json:"timestamp"`
	Seq        uint64       `json:"seq"`
	Nonce      []byte       `json:"nonce"`
	Meta       *FileMeta    `json:"meta,omitempty"`
}

// KEPType distinguishes the two KEP message kinds of spec.md §3.
type KEPType string

const (
	KEPInit     KEPType = "KEP_INIT"
	KEPResponse KEPType = "KEP_RESPONSE"
)

// KEPMessage is the tagged union of spec.md §3. KeyConfirmation is only set
// for KEP_RESPONSE.
type KEPMessage struct {
	Type            KEPType   `json:"type"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	SessionID       string    `json:"sessionId"`
	EphPub          PublicJWK `json:"ephPub"`
	Signature       []byte    `json:"signature"`
	Timestamp       int64     `json:"timestamp"`
	Nonce           []byte    `json:"nonce"`
	Seq             uint64    `json:"seq"`
	KeyConfirmation []byte    `json:"keyConfirmation,omitempty"`
}

// NowMillis is the single clock read point used to build timestamps, kept
// as a function value so tests can stub it deterministically.
var NowMillis = func() int64 { return time.Now().UnixMilli() }
