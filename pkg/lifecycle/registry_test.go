package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/models"
)

func TestRegistryPutGet(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("petstore")
	assert.False(t, ok)

	profile := models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100)
	r.Put(profile)

	got, ok := r.Get("petstore")
	require.True(t, ok)
	assert.Same(t, profile, got)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.Put(models.NewAPIProfile("zebra", "http://example.com/z.json", 9300))
	r.Put(models.NewAPIProfile("alpha", "http://example.com/a.json", 9100))
	r.Put(models.NewAPIProfile("mango", "http://example.com/m.json", 9200))

	names := []string{}
	for _, p := range r.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, names)
}

func TestRegistryWithLock(t *testing.T) {
	r := NewRegistry()
	r.Put(models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100))

	err := r.WithLock("petstore", func(p *models.APIProfile) error {
		p.Enabled["get /pets"] = true
		return nil
	})
	require.NoError(t, err)

	got, _ := r.Get("petstore")
	assert.True(t, got.Enabled["get /pets"])

	err = r.WithLock("ghost", func(p *models.APIProfile) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeStore))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Put(models.NewAPIProfile("petstore", "http://example.com/spec.json", 9100))
	r.Logs("petstore").Append("line")

	r.Remove("petstore")

	_, ok := r.Get("petstore")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Logs("petstore").Len())

	r.Remove("never-existed")
}

func TestRegistryLogsCreateOnDemand(t *testing.T) {
	r := NewRegistry()

	ring := r.Logs("petstore")
	require.NotNil(t, ring)
	ring.Append("tool server starting on :9100")

	assert.Same(t, ring, r.Logs("petstore"))
	assert.Equal(t, 1, r.Logs("petstore").Len())
}
