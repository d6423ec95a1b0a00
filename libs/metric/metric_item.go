package metric

// MetricItem is one subsystem's self-reported metrics, rendered as a JSON
// document. Implementations guard their own fields; JSONString may be called
// from the rpc goroutines at any time.
type MetricItem interface {
	JSONString() string
}

type mockMetricItem struct {
	body string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.body
}
