// Command e2ee-demo is a runnable two-party walkthrough of the core: Alice
// and Bob generate identities, run the key exchange over an in-process
// transport, and exchange one encrypted chat message plus one small file.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"e2eecore"
	"e2eecore/internal/config"
	"e2eecore/internal/filetransfer"
	"e2eecore/internal/identity"
	"e2eecore/internal/securitylog"
	"e2eecore/internal/session"
	"e2eecore/internal/supervisor"
	"e2eecore/pkg/wire"
)

type memSource struct{ data []byte }

func (m *memSource) Size() int64 { return int64(len(m.data)) }
func (m *memSource) Slice(offset, length int64) ([]byte, error) {
	return m.data[offset : offset+length], nil
}

type loopbackTransport struct {
	respond func(wire.KEPMessage) (wire.KEPMessage, error)
}

func (l *loopbackTransport) RoundTrip(ctx context.Context, init wire.KEPMessage) (wire.KEPMessage, error) {
	return l.respond(init)
}

func main() {
	aliceLogger := slog.New(securitylog.WrapHandler(slog.NewTextHandler(os.Stdout, nil)))
	bobLogger := slog.New(securitylog.WrapHandler(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Default()

	alice := e2eecore.New(cfg, identity.NewMemoryStore(), session.NewMemoryStore(), []byte("demo-salt"), aliceLogger)
	bob := e2eecore.New(cfg, identity.NewMemoryStore(), session.NewMemoryStore(), []byte("demo-salt"), bobLogger)

	if _, err := alice.Identity.Generate("alice", []byte("correct horse battery staple")); err != nil {
		log.Fatalf("generate alice identity: %v", err)
	}
	if _, err := bob.Identity.Generate("bob", []byte("another strong passphrase")); err != nil {
		log.Fatalf("generate bob identity: %v", err)
	}

	aliceSigner, err := alice.Login("alice", []byte("correct horse battery staple"), bytes.Repeat([]byte{0x01}, 16))
	if err != nil {
		log.Fatalf("alice login: %v", err)
	}
	bobSigner, err := bob.Login("bob", []byte("another strong passphrase"), bytes.Repeat([]byte{0x02}, 16))
	if err != nil {
		log.Fatalf("bob login: %v", err)
	}

	transport := &loopbackTransport{
		respond: func(init wire.KEPMessage) (wire.KEPMessage, error) {
			resp, _, err := bob.Supervisor.HandleIncomingKEPInit("bob", init, bobSigner, aliceSigner.PublicKey())
			return resp, err
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), supervisor.KEPTimeout)
	defer cancel()
	sessionID, err := alice.EstablishSession(ctx, "alice", "bob", aliceSigner, bobSigner.PublicKey(), transport)
	if err != nil {
		log.Fatalf("establish session: %v", err)
	}
	fmt.Printf("session established: %s\n", sessionID)

	now := time.Now().UnixMilli()
	env, err := alice.SendMessage(sessionID, "alice", "bob", []byte("hey bob, it's alice"), now)
	if err != nil {
		log.Fatalf("send message: %v", err)
	}
	plaintext, err := bob.ReceiveMessage(env, "bob", now)
	if err != nil {
		log.Fatalf("receive message: %v", err)
	}
	fmt.Printf("bob received: %q\n", plaintext)

	fileBytes := bytes.Repeat([]byte{0x42}, 300*1024)
	src := &memSource{data: fileBytes}
	metaEnv, chunks, err := filetransfer.Encrypt(alice.Sessions, alice.SeqMgr, sessionID, "alice", "bob", src, "photo.bin", "application/octet-stream", cfg.ChunkSizeBytes, now, func(done, total int, bps, eta float64) {
		fmt.Printf("encrypting chunk %d/%d\n", done, total)
	})
	if err != nil {
		log.Fatalf("encrypt file: %v", err)
	}
	blob, err := filetransfer.Decrypt(bob.Sessions, metaEnv, chunks, "bob", now)
	if err != nil {
		log.Fatalf("decrypt file: %v", err)
	}
	fmt.Printf("bob reassembled %q: %d bytes\n", blob.Filename, len(blob.Bytes))
}
