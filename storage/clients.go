package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ClientsFile is the on-disk form of the client registry
type ClientsFile struct {
	Clients []ClientEntry `yaml:"clients"`
}

// ClientEntry is a single client registration in a ClientsFile
type ClientEntry struct {
	ID           string     `yaml:"id"`
	ClientType   ClientType `yaml:"client_type,omitempty"`
	RedirectURIs []string   `yaml:"redirect_uris,omitempty"`
	Name         string     `yaml:"name,omitempty"`
	SecretHash   string     `yaml:"secret_hash,omitempty"`
}

// LoadClientsFile reads and validates a clients file from disk
func LoadClientsFile(path string) ([]*Client, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}
	clients, err := ParseClients(data)
	if err != nil {
		return nil, fmt.Errorf("invalid clients file %s: %w", path, err)
	}
	return clients, nil
}

// ParseClients decodes a YAML clients document.
// Unknown keys are rejected. A missing client_type defaults to confidential when a
// secret hash is present and to public otherwise.
func ParseClients(data []byte) ([]*Client, error) {
	var file ClientsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Clients))
	clients := make([]*Client, 0, len(file.Clients))
	for i, entry := range file.Clients {
		if entry.ID == "" {
			return nil, fmt.Errorf("client #%d: id is required", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("client %q: duplicate id", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		clientType := entry.ClientType
		if clientType == "" {
			clientType = ClientTypePublic
			if entry.SecretHash != "" {
				clientType = ClientTypeConfidential
			}
		}
		if !clientType.Valid() {
			return nil, fmt.Errorf("client %q: unknown client_type %q", entry.ID, clientType)
		}

		clients = append(clients, &Client{
			ClientID:         entry.ID,
			ClientType:       clientType,
			RedirectURIs:     entry.RedirectURIs,
			ClientName:       entry.Name,
			ClientSecretHash: entry.SecretHash,
		})
	}
	return clients, nil
}

// ImportClients saves every client into store
func ImportClients(ctx context.Context, store ClientStore, clients []*Client) error {
	for _, client := range clients {
		if err := store.SaveClient(ctx, client); err != nil {
			return fmt.Errorf("failed to save client %q: %w", client.ClientID, err)
		}
	}
	return nil
}
