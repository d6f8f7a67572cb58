package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (goredis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestDeduperClaimOncePerFingerprint(t *testing.T) {
	client, _ := newTestClient(t)
	deduper := NewDeduper(client, "dedupe", time.Hour)
	ctx := context.Background()

	fp := Fingerprint("owner-1", "pick up dry cleaning")

	ok, err := deduper.Claim(ctx, fp, "dump-1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatal("first claim should win")
	}

	ok, err = deduper.Claim(ctx, fp, "dump-2")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("second claim should be reported as duplicate")
	}

	holder, found, err := deduper.Holder(ctx, fp)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if !found || holder != "dump-1" {
		t.Fatalf("expected holder dump-1, got %q found=%v", holder, found)
	}
}

func TestDeduperClaimExpires(t *testing.T) {
	client, mr := newTestClient(t)
	deduper := NewDeduper(client, "dedupe", time.Minute)
	ctx := context.Background()

	fp := Fingerprint("owner-1", "same content")
	if ok, _ := deduper.Claim(ctx, fp, "dump-1"); !ok {
		t.Fatal("first claim should win")
	}

	mr.FastForward(2 * time.Minute)

	ok, err := deduper.Claim(ctx, fp, "dump-2")
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if !ok {
		t.Fatal("claim should succeed once the prior claim expired")
	}
}

func TestDeduperRelease(t *testing.T) {
	client, _ := newTestClient(t)
	deduper := NewDeduper(client, "dedupe", time.Hour)
	ctx := context.Background()

	fp := Fingerprint("owner-2", "book flight")
	if ok, _ := deduper.Claim(ctx, fp, "dump-1"); !ok {
		t.Fatal("first claim should win")
	}
	if err := deduper.Release(ctx, fp); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := deduper.Claim(ctx, fp, "dump-2"); !ok {
		t.Fatal("claim should succeed after release")
	}

	if _, found, _ := deduper.Holder(ctx, Fingerprint("owner-2", "unclaimed")); found {
		t.Fatal("unclaimed fingerprint should have no holder")
	}
}

func TestFingerprintSeparatesOwners(t *testing.T) {
	if Fingerprint("owner-1", "same") == Fingerprint("owner-2", "same") {
		t.Fatal("fingerprints must be scoped per owner")
	}
}
