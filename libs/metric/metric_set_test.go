package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricSet(t *testing.T) {
	ms := NewMetricSet()

	item := &mockMetricItem{body: `{"x":1}`}
	require.NoError(t, ms.SetMetrics("consensus", item))
	assert.ErrorIs(t, ms.SetMetrics("consensus", item), ErrMetricLabelExist)

	assert.True(t, ms.HasMetrics("consensus"))
	assert.False(t, ms.HasMetrics("mempool"))
	assert.Equal(t, `{"x":1}`, ms.GetMetrics("consensus").JSONString())
	assert.Nil(t, ms.GetMetrics("mempool"))

	require.NoError(t, ms.SetMetrics("mempool", &mockMetricItem{body: `{}`}))
	assert.ElementsMatch(t, []string{"consensus", "mempool"}, ms.GetAllLabels())
	assert.Len(t, ms.GetAllMetrics(), 2)
}
