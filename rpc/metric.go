package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics dumps registered metric items as JSON strings, one entry per
// subsystem label. An empty label selects all of them.
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	result := &ResultMetrics{Metrics: make(map[string]string)}

	var labels []string
	if label != "" {
		labels = []string{label}
	} else {
		labels = env.MetricSet.GetAllLabels()
	}

	for _, l := range labels {
		if item := env.MetricSet.GetMetrics(l); item != nil {
			result.Metrics[l] = item.JSONString()
		}
	}
	return result, nil
}
