package fabric

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// jobsWire is the fabric's job listing payload.
type jobsWire struct {
	Running             []jobEntryWire    `json:"running"`
	Queued              []jobEntryWire    `json:"queued"`
	Stopped             []jobEntryWire    `json:"stopped"`
	Others              []jobEntryWire    `json:"others"`
	PrivateBatchRunning []jobEntryWire    `json:"private_batch_running"`
	PrivateBatchQueued  []jobEntryWire    `json:"private_batch_queued"`
	ClusterStatus       map[string]string `json:"cluster_status"`
}

// jobEntryWire is one job in the fabric's listing. Fields beyond the
// core triple land in Extra.
type jobEntryWire struct {
	Model     string            `json:"model"`
	Framework string            `json:"framework"`
	Cluster   string            `json:"cluster"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// GetJobs returns the cluster's current model availability from the
// fabric control plane. It is called only by the cluster status cache.
func (a *Adaptor) GetJobs(ctx context.Context) (*adaptors.ClusterStatus, error) {
	if a.controlURL == "" {
		return nil, &adaptors.ConfigError{
			Endpoint: a.Name(),
			Field:    "extra." + extraControlURL,
			Message:  "control plane URL is required for job listing",
		}
	}

	var resp jobsWire
	url := fmt.Sprintf("%s/clusters/%s/jobs", a.controlURL, a.executionTarget)
	if err := a.controlJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	status := &adaptors.ClusterStatus{
		Running:             convertJobEntries(resp.Running, a.Config().Cluster),
		Queued:              convertJobEntries(resp.Queued, a.Config().Cluster),
		Stopped:             convertJobEntries(resp.Stopped, a.Config().Cluster),
		Others:              convertJobEntries(resp.Others, a.Config().Cluster),
		PrivateBatchRunning: convertJobEntries(resp.PrivateBatchRunning, a.Config().Cluster),
		PrivateBatchQueued:  convertJobEntries(resp.PrivateBatchQueued, a.Config().Cluster),
		ClusterInfo:         resp.ClusterStatus,
		CollectedAt:         time.Now(),
	}

	return status, nil
}

// convertJobEntries normalizes wire entries, defaulting the cluster name
// when the fabric omits it.
func convertJobEntries(entries []jobEntryWire, cluster string) []adaptors.JobEntry {
	if len(entries) == 0 {
		return nil
	}

	out := make([]adaptors.JobEntry, len(entries))
	for i, e := range entries {
		out[i] = adaptors.JobEntry{
			Model:     e.Model,
			Framework: e.Framework,
			Cluster:   e.Cluster,
			Extra:     e.Extra,
		}
		if out[i].Cluster == "" {
			out[i].Cluster = cluster
		}
	}
	return out
}
