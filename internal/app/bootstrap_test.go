package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"track_record/internal/audit"
	"track_record/internal/infra"
	"track_record/internal/infra/ingest"
	"track_record/internal/infra/storage"
)

func newTestClient(t *testing.T, baseURL string) *ingest.Client {
	t.Helper()
	cfg := &infra.Config{}
	cfg.Audit.BaseURL = baseURL
	cfg.Audit.Secret = "test-secret"
	return ingest.NewClient(cfg, "acct-1")
}

func remoteWithHead(t *testing.T, seqNo uint64, hash string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"lastSeqNo":     seqNo,
			"lastEventHash": hash,
		})
	}))
}

// secondaryOnlyStorage simulates loss of the primary store: commit once so
// both channels are written, then reopen with a fresh database file over the
// same cache directory. Only the seq slot survives.
func secondaryOnlyStorage(t *testing.T, seqNo uint64) *storage.Storage {
	t.Helper()
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")

	s, err := storage.Open(filepath.Join(dir, "lost.db"), cacheDir, "slot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveChainState("acct-1", seqNo, audit.Digest("lost head")); err != nil {
		t.Fatalf("SaveChainState failed: %v", err)
	}

	reopened, err := storage.Open(filepath.Join(dir, "fresh.db"), cacheDir, "slot")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	return reopened
}

// Primary lost, secondary slot alive: the head must come from the remote
// authority, never from a genesis hash glued onto a mid-chain seq.
func TestLoadChainHeadConsultsRemoteWhenPrimaryLost(t *testing.T) {
	head := audit.Digest("remote head")
	srv := remoteWithHead(t, 8, head)
	defer srv.Close()

	b := &Bootstrap{Storage: secondaryOnlyStorage(t, 3), Client: newTestClient(t, srv.URL)}

	seqNo, lastHash, err := b.loadChainHead(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("loadChainHead failed: %v", err)
	}
	if seqNo != 8 {
		t.Errorf("seqNo = %d, want the remote head 8", seqNo)
	}
	if lastHash != head {
		t.Errorf("lastHash = %s, want the remote head hash", lastHash)
	}
}

func TestLoadChainHeadKeepsSecondaryHighWaterMark(t *testing.T) {
	head := audit.Digest("remote head")
	srv := remoteWithHead(t, 8, head)
	defer srv.Close()

	// Secondary slot ahead of the remote: resume at the larger seq so the
	// sequence never regresses, with the remote's hash.
	b := &Bootstrap{Storage: secondaryOnlyStorage(t, 9), Client: newTestClient(t, srv.URL)}

	seqNo, lastHash, err := b.loadChainHead(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("loadChainHead failed: %v", err)
	}
	if seqNo != 9 {
		t.Errorf("seqNo = %d, want the secondary high-water mark 9", seqNo)
	}
	if lastHash != head {
		t.Errorf("lastHash = %s, want the remote head hash", lastHash)
	}
}

func TestLoadChainHeadPrefersCompleteLocalState(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "a.db"), filepath.Join(dir, "cache"), "slot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	localHead := audit.Digest("local head")
	if err := s.SaveChainState("acct-1", 5, localHead); err != nil {
		t.Fatalf("SaveChainState failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("remote must not be consulted when local state is complete")
	}))
	defer srv.Close()

	b := &Bootstrap{Storage: s, Client: newTestClient(t, srv.URL)}
	seqNo, lastHash, err := b.loadChainHead(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("loadChainHead failed: %v", err)
	}
	if seqNo != 5 || lastHash != localHead {
		t.Errorf("got seq=%d hash=%s, want the local head", seqNo, lastHash)
	}
}

func TestLoadChainHeadGenesisOnlyWhenRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nobody listening anymore

	b := &Bootstrap{Storage: secondaryOnlyStorage(t, 3), Client: newTestClient(t, srv.URL)}

	seqNo, lastHash, err := b.loadChainHead(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("loadChainHead failed: %v", err)
	}
	if seqNo != 3 {
		t.Errorf("seqNo = %d, want the surviving secondary seq 3", seqNo)
	}
	if lastHash != audit.GenesisHash {
		t.Errorf("lastHash = %s, want genesis as the last resort", lastHash)
	}
}

func TestLoadChainHeadFreshInstanceStartsAtGenesis(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "a.db"), filepath.Join(dir, "cache"), "slot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := &Bootstrap{Storage: s, Client: newTestClient(t, srv.URL)}
	seqNo, lastHash, err := b.loadChainHead(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("loadChainHead failed: %v", err)
	}
	if seqNo != 0 || lastHash != audit.GenesisHash {
		t.Errorf("got seq=%d hash=%s, want a genesis start", seqNo, lastHash)
	}
}
