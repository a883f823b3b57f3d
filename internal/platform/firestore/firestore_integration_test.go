//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/loomline/api/internal/platform/config"
	pfirestore "github.com/loomline/api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type stockEntry struct {
	SKU   string `firestore:"sku"`
	Units int    `firestore:"units"`
}

func TestProviderAndCollectionIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := provider.Client(ctx); err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}

	stock := pfirestore.NewCollection[stockEntry](provider, "stock")

	if err := stock.Set(ctx, "sku-linen", stockEntry{SKU: "LNN-01", Units: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	doc, err := stock.Get(ctx, "sku-linen")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "sku-linen" || doc.Data.SKU != "LNN-01" || doc.Data.Units != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected update time to be set")
	}

	if err := stock.Update(ctx, "sku-linen", []firestore.Update{{Path: "units", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	doc, err = stock.Get(ctx, "sku-linen")
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if doc.Data.Units != 2 {
		t.Fatalf("expected units=2, got %d", doc.Data.Units)
	}

	docs, err := stock.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sku", "==", "LNN-01")
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	_, err = stock.Get(ctx, "missing")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	var classified *pfirestore.Error
	if !errors.As(err, &classified) || !classified.IsNotFound() {
		t.Fatalf("expected not-found classification, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := stock.Doc(ctx, "sku-linen")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var entry stockEntry
		if err := snap.DataTo(&entry); err != nil {
			return err
		}
		entry.Units++
		return tx.Set(ref, entry)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	doc, err = stock.Get(ctx, "sku-linen")
	if err != nil {
		t.Fatalf("get after transaction failed: %v", err)
	}
	if doc.Data.Units != 3 {
		t.Fatalf("expected units=3 after txn, got %d", doc.Data.Units)
	}

	cancelledCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelledCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
