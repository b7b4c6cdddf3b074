package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/hashicorp/vault/api"
)

// VaultKVStore persists vault records in HashiCorp Vault's KV v2 secrets
// engine. The engine's native check-and-set is used for the optimistic
// concurrency contract: a record with application version v lives at KV
// version v+1, so CompareAndSwap writes with cas=v+1 and a conflict
// surfaces as a 400 from Vault.
type VaultKVStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultKVStore creates a KV v2 backed store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (e.g. "deadhand")
//   - token: Vault token; empty falls back to the VAULT_TOKEN environment
func NewVaultKVStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultKVStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultKVStore{
		client:    client,
		mountPath: strings.TrimSuffix(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (s *VaultKVStore) recordPath(id interfaces.VaultID) string {
	return fmt.Sprintf("%s/data/%s/vaults/%s", s.mountPath, s.dataPath, id)
}

// Create persists a new record with cas=0 so an existing key fails.
func (s *VaultKVStore) Create(ctx context.Context, rec *interfaces.VaultRecord) error {
	if err := s.write(ctx, rec, 0); err != nil {
		if isCASConflict(err) {
			return interfaces.ErrVaultExists
		}
		return err
	}
	return nil
}

// Get returns the stored record.
func (s *VaultKVStore) Get(ctx context.Context, id interfaces.VaultID) (*interfaces.VaultRecord, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.recordPath(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrVaultNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response for %s", id)
	}
	encoded, ok := data["record"].(string)
	if !ok {
		return nil, fmt.Errorf("record key missing in Vault data for %s", id)
	}

	var rec interfaces.VaultRecord
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("corrupt vault record %s: %w", id, err)
	}
	return &rec, nil
}

// CompareAndSwap stores rec using the KV engine's check-and-set.
func (s *VaultKVStore) CompareAndSwap(ctx context.Context, rec *interfaces.VaultRecord) error {
	next := rec.Clone()
	next.Version = rec.Version + 1

	// The currently stored record with version v is KV version v+1.
	if err := s.write(ctx, next, rec.Version+1); err != nil {
		if isCASConflict(err) {
			return interfaces.ErrVersionConflict
		}
		return err
	}
	rec.Version = next.Version
	return nil
}

func (s *VaultKVStore) write(ctx context.Context, rec *interfaces.VaultRecord, cas uint64) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal vault record: %w", err)
	}

	payload := map[string]interface{}{
		"data":    map[string]interface{}{"record": string(encoded)},
		"options": map[string]interface{}{"cas": cas},
	}
	if _, err := s.client.Logical().WriteWithContext(ctx, s.recordPath(rec.ID), payload); err != nil {
		return err
	}
	return nil
}

// List returns the IDs of all stored vaults using the KV metadata
// listing.
func (s *VaultKVStore) List(ctx context.Context) ([]interfaces.VaultID, error) {
	listPath := fmt.Sprintf("%s/metadata/%s/vaults", s.mountPath, s.dataPath)
	secret, err := s.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid list format in Vault response")
	}

	ids := make([]interfaces.VaultID, 0, len(keys))
	for _, key := range keys {
		name, ok := key.(string)
		if !ok {
			continue
		}
		id, err := interfaces.ParseVaultID(name)
		if err != nil {
			s.log.Warn("Skipping unrecognized key in Vault listing", slog.String("key", name))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Name returns an identifier for logging.
func (s *VaultKVStore) Name() string {
	return fmt.Sprintf("vault-%s-%s", s.mountPath, s.dataPath)
}

// isCASConflict detects the KV v2 check-and-set rejection. Vault
// reports it as a 400 whose error message names the check-and-set
// parameter, so the message is matched as well; other 400s (malformed
// payloads, bad paths) must not be mistaken for version conflicts or
// the callers' retry loops would never terminate.
func isCASConflict(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}
