// Package consul implements the index backend on HashiCorp Consul KV.
//
// One JSON-encoded row is stored per basket under a configurable prefix,
// which keeps values far below Consul's 512KB limit and lets several
// processes share an index without running a database. Queries list the
// prefix and filter in memory; suitable for small to medium pantries.
package consul

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/309thEDDGE/weave/index"
)

type ConsulBackend struct {
	client *api.Client
	kv     *api.KV
	prefix string
}

// ConsulBackendConfig contains configuration options for the Consul backend.
type ConsulBackendConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all index keys in Consul KV (default: "weave/index")
	Prefix string
}

func NewConsulBackend(config *ConsulBackendConfig) (*ConsulBackend, error) {
	if config == nil {
		config = &ConsulBackendConfig{}
	}
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "weave/index"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulBackend{
		client: client,
		kv:     client.KV(),
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name returns the identifier name defined for this backend.
func (*ConsulBackend) Name() string {
	return "consul"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (cb *ConsulBackend) Open(ctx context.Context) error {
	// Verify the agent is reachable
	_, err := cb.client.Status().Leader()
	return err
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (cb *ConsulBackend) Close(ctx context.Context) error {
	// Consul client is stateless
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (cb *ConsulBackend) GetCapabilities() *index.Capabilities {
	return &index.Capabilities{
		Capabilities: []index.Capability{
			index.CapabilityPersistent,
			index.CapabilityShared,
		},
	}
}

func (cb *ConsulBackend) key(uuid string) string {
	return cb.prefix + "/" + uuid
}

func (cb *ConsulBackend) Upsert(ctx context.Context, row *index.Row) error {
	value, err := json.Marshal(row)
	if err != nil {
		return err
	}

	_, err = cb.kv.Put(&api.KVPair{
		Key:   cb.key(row.UUID),
		Value: value,
	}, (&api.WriteOptions{}).WithContext(ctx))

	return err
}

func (cb *ConsulBackend) Get(ctx context.Context, uuid string) (*index.Row, error) {
	pair, _, err := cb.kv.Get(cb.key(uuid), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, index.ErrNotFound
	}

	var row index.Row
	if err := json.Unmarshal(pair.Value, &row); err != nil {
		return nil, err
	}

	return &row, nil
}

func (cb *ConsulBackend) Query(ctx context.Context, query *index.Query) ([]*index.Row, error) {
	pairs, _, err := cb.kv.List(cb.prefix+"/", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	candidates := make([]*index.Row, 0, len(pairs))
	for _, pair := range pairs {
		var row index.Row
		if err := json.Unmarshal(pair.Value, &row); err != nil {
			continue
		}
		candidates = append(candidates, &row)
	}

	return index.ApplyFilters(candidates, query), nil
}

func (cb *ConsulBackend) Delete(ctx context.Context, uuid string) error {
	// Consul deletes are idempotent; check existence to honor the contract.
	if _, err := cb.Get(ctx, uuid); err != nil {
		return err
	}

	_, err := cb.kv.Delete(cb.key(uuid), (&api.WriteOptions{}).WithContext(ctx))
	return err
}

func (cb *ConsulBackend) Len(ctx context.Context) (int, error) {
	keys, _, err := cb.kv.Keys(cb.prefix+"/", "", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}
