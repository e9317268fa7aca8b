package xdlock

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdAdapter implements Adapter over a raw etcd KV transaction instead of
// the Session/Mutex machinery etcdFactory uses. The transactional form is
// what lets this backend express the owner-equality idempotent-acquire
// contract: concurrency.Mutex has no notion of "already mine, refresh it".
//
// Expiration rides on etcd leases, which count in whole seconds — a TTL
// below one second is rounded up to the lease minimum.
type EtcdAdapter struct {
	client *clientv3.Client
}

// NewEtcdAdapter wraps a caller-owned etcd client. The client's lifecycle
// stays with the caller; Close here is a no-op.
func NewEtcdAdapter(client *clientv3.Client) (*EtcdAdapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &EtcdAdapter{client: client}, nil
}

func (a *EtcdAdapter) BackendKind() string { return "etcd" }

// leaseSeconds converts ttl into etcd's whole-second lease granularity,
// never below 1.
func leaseSeconds(ttl time.Duration) int64 {
	s := int64((ttl + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func (a *EtcdAdapter) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	lease, err := a.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return false, fmt.Errorf("xdlock: etcd grant: %w", err)
	}

	// Free key: create it under the fresh lease. Taken key: read who holds
	// it inside the same transaction so the decision below races with no
	// one.
	resp, err := a.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, owner, clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		a.revoke(ctx, lease.ID)
		return false, fmt.Errorf("xdlock: etcd acquire %q: %w", key, err)
	}
	if resp.Succeeded {
		return true, nil
	}

	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 || string(kvs[0].Value) != owner {
		a.revoke(ctx, lease.ID)
		return false, nil
	}

	// Already ours: re-put under the new lease, guarded on ownership not
	// having changed since the read above.
	retry, err := a.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", owner)).
		Then(clientv3.OpPut(key, owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		a.revoke(ctx, lease.ID)
		return false, fmt.Errorf("xdlock: etcd reacquire %q: %w", key, err)
	}
	if !retry.Succeeded {
		a.revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

func (a *EtcdAdapter) Release(ctx context.Context, key, owner string) error {
	resp, err := a.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", owner)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("xdlock: etcd release %q: %w", key, err)
	}
	if !resp.Succeeded {
		return ErrNotLocked
	}
	return nil
}

func (a *EtcdAdapter) Refresh(ctx context.Context, key, owner string, ttl time.Duration) error {
	lease, err := a.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return fmt.Errorf("xdlock: etcd grant: %w", err)
	}
	resp, err := a.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", owner)).
		Then(clientv3.OpPut(key, owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		a.revoke(ctx, lease.ID)
		return fmt.Errorf("xdlock: etcd refresh %q: %w", key, err)
	}
	if !resp.Succeeded {
		a.revoke(ctx, lease.ID)
		return ErrNotLocked
	}
	return nil
}

func (a *EtcdAdapter) ForceRelease(ctx context.Context, key string) error {
	if _, err := a.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("xdlock: etcd force release %q: %w", key, err)
	}
	return nil
}

func (a *EtcdAdapter) Inspect(ctx context.Context, key string) (string, time.Duration, bool, error) {
	resp, err := a.client.Get(ctx, key)
	if err != nil {
		return "", 0, false, fmt.Errorf("xdlock: etcd inspect %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", 0, false, nil
	}
	kv := resp.Kvs[0]
	if kv.Lease == 0 {
		return string(kv.Value), 0, true, nil
	}
	ttlResp, err := a.client.TimeToLive(ctx, clientv3.LeaseID(kv.Lease))
	if err != nil {
		return "", 0, false, fmt.Errorf("xdlock: etcd lease ttl %q: %w", key, err)
	}
	if ttlResp.TTL <= 0 {
		return "", 0, false, nil
	}
	return string(kv.Value), time.Duration(ttlResp.TTL) * time.Second, true, nil
}

func (a *EtcdAdapter) Close(ctx context.Context) error { return nil }

// revoke is best-effort lease cleanup for acquire paths that lost the race;
// the lease would expire on its own anyway.
func (a *EtcdAdapter) revoke(ctx context.Context, id clientv3.LeaseID) {
	_, _ = a.client.Revoke(ctx, id)
}

var _ Adapter = (*EtcdAdapter)(nil)
