package registry

import (
	"database/sql"
	"path"
	"testing"

	"github.com/google/uuid"
)

// setupTestStore creates a temporary registry database
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(path.Join(t.TempDir(), "test_registry.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(name string, port int) InstanceRecord {
	return InstanceRecord{
		ID:        uuid.New().String(),
		Name:      name,
		Path:      "/srv/bots/" + name,
		Type:      TypeNode,
		Port:      port,
		AutoStart: false,
		RedisMode: RedisShared,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	rec := sampleRecord("alpha", 3000)
	rec.Proxy = &ProxyConfig{Protocol: "http", Host: "proxy.local", Port: 8888, Username: "bob", Password: "s3cret"}

	if err := store.Create(rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Name != "alpha" || got.Port != 3000 || got.Type != TypeNode {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Proxy == nil || got.Proxy.Host != "proxy.local" || got.Proxy.Password != "s3cret" {
		t.Errorf("proxy did not round-trip: %+v", got.Proxy)
	}
}

func TestGetUnknownID(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get("no-such-id"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	store := setupTestStore(t)
	a := sampleRecord("alpha", 3000)
	b := sampleRecord("beta", 3001)
	if err := store.Create(a); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(b); err != nil {
		t.Fatal(err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestRenameAndUpdatePort(t *testing.T) {
	store := setupTestStore(t)
	rec := sampleRecord("alpha", 3000)
	if err := store.Create(rec); err != nil {
		t.Fatal(err)
	}

	if err := store.Rename(rec.ID, "alpha-2"); err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	if err := store.UpdatePort(rec.ID, 3100); err != nil {
		t.Fatalf("UpdatePort returned error: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "alpha-2" || got.Port != 3100 {
		t.Errorf("updates not applied: %+v", got)
	}

	if err := store.Rename("missing", "x"); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows renaming missing instance, got %v", err)
	}
}

func TestUpdateProxyClears(t *testing.T) {
	store := setupTestStore(t)
	rec := sampleRecord("alpha", 3000)
	rec.Proxy = &ProxyConfig{Protocol: "http", Host: "proxy.local", Port: 8888}
	if err := store.Create(rec); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateProxy(rec.ID, nil); err != nil {
		t.Fatalf("UpdateProxy returned error: %v", err)
	}
	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Proxy != nil {
		t.Errorf("expected proxy cleared, got %+v", got.Proxy)
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)
	rec := sampleRecord("alpha", 3000)
	if err := store.Create(rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(rec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(rec.ID); err != sql.ErrNoRows {
		t.Errorf("expected record gone, got %v", err)
	}
}

func TestRedisKeepAliveDefaultsFalse(t *testing.T) {
	store := setupTestStore(t)

	keepAlive, err := store.RedisKeepAlive()
	if err != nil {
		t.Fatalf("RedisKeepAlive returned error: %v", err)
	}
	if keepAlive {
		t.Error("expected keep-alive to default to false")
	}

	if err := store.SetRedisKeepAlive(true); err != nil {
		t.Fatalf("SetRedisKeepAlive returned error: %v", err)
	}
	keepAlive, err = store.RedisKeepAlive()
	if err != nil {
		t.Fatal(err)
	}
	if !keepAlive {
		t.Error("expected keep-alive true after SetRedisKeepAlive(true)")
	}

	if err := store.SetRedisKeepAlive(false); err != nil {
		t.Fatal(err)
	}
	keepAlive, err = store.RedisKeepAlive()
	if err != nil {
		t.Fatal(err)
	}
	if keepAlive {
		t.Error("expected keep-alive false after SetRedisKeepAlive(false)")
	}
}
