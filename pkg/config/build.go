package config

import (
	"fmt"

	"polaris-hq/polaris/pkg/adaptors"
	"polaris-hq/polaris/pkg/auth"
	"polaris-hq/polaris/pkg/routing"
	"polaris-hq/polaris/pkg/secrets"
)

// Runtime holds the objects constructed from a validated configuration:
// the routing topology, the per-cluster status sources, and the API key
// set. Building is separate from loading so that reload can construct a
// fresh Runtime and swap it in atomically.
type Runtime struct {
	// Topology is the routable universe of endpoints and federated
	// endpoints.
	Topology *routing.Topology

	// Clusters maps cluster name to its status source adaptor, for the
	// cluster status cache.
	Clusters map[string]adaptors.ClusterAdaptor

	// Keys is the accepted API key set.
	Keys []*auth.KeyInfo
}

// Build resolves secret references and constructs the runtime objects
// from a validated configuration. Secret resolution failures and
// adaptor construction failures surface here, before anything is wired
// into the server.
func Build(cfg *Config) (*Runtime, error) {
	topology := &routing.Topology{
		Endpoints: make(map[string]*routing.Endpoint, len(cfg.Endpoints)),
		Federated: make(map[string]*routing.FederatedEndpoint, len(cfg.FederatedModels)),
	}
	clusters := make(map[string]adaptors.ClusterAdaptor)

	for _, ep := range cfg.Endpoints {
		apiKey, err := secrets.Resolve(ep.APIKey)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", ep.Slug, err)
		}

		adaptor, err := adaptors.New(adaptors.Config{
			Slug:           ep.Slug,
			Cluster:        ep.Cluster,
			Framework:      ep.Framework,
			Model:          ep.Model,
			Type:           ep.Type,
			BaseURL:        ep.URL,
			APIKey:         apiKey,
			Timeout:        ep.Timeout,
			MaxRetries:     ep.MaxRetries,
			AllowedGroups:  ep.AllowedGroups,
			AllowedDomains: ep.AllowedDomains,
			Extra:          ep.Extra,
		})
		if err != nil {
			return nil, err
		}

		topology.Endpoints[ep.Slug] = &routing.Endpoint{
			Slug:      ep.Slug,
			Cluster:   ep.Cluster,
			Framework: ep.Framework,
			Model:     ep.Model,
			Adaptor:   adaptor,
		}

		if ep.ClusterStatus {
			ca, ok := adaptor.(adaptors.ClusterAdaptor)
			if !ok {
				return nil, fmt.Errorf("endpoint %q: adaptor type %q cannot serve cluster status", ep.Slug, ep.Type)
			}
			clusters[ep.Cluster] = ca
		}
	}

	for _, fm := range cfg.FederatedModels {
		fe := &routing.FederatedEndpoint{
			Slug:            fm.Name,
			TargetModelName: fm.Name,
			Targets:         make([]routing.Target, 0, len(fm.Targets)),
		}
		for _, target := range fm.Targets {
			ep := topology.Endpoints[target.Endpoint]
			fe.Targets = append(fe.Targets, routing.Target{
				Cluster:      ep.Cluster,
				Framework:    ep.Framework,
				Model:        ep.Model,
				EndpointSlug: ep.Slug,
			})
		}
		topology.Federated[fm.Name] = fe
	}

	keys, err := buildKeys(cfg.APIKeys)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Topology: topology,
		Clusters: clusters,
		Keys:     keys,
	}, nil
}

func buildKeys(configs []APIKeyConfig) ([]*auth.KeyInfo, error) {
	keys := make([]*auth.KeyInfo, 0, len(configs))
	for _, kc := range configs {
		value, err := secrets.Resolve(kc.Key)
		if err != nil {
			return nil, fmt.Errorf("api key for %q: %w", kc.Username, err)
		}
		keys = append(keys, &auth.KeyInfo{
			Key: value,
			Identity: auth.Identity{
				Username: kc.Username,
				Email:    kc.Email,
				Groups:   kc.Groups,
			},
			Enabled: kc.KeyEnabled(),
		})
	}
	return keys, nil
}
