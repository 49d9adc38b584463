package config

import (
	"encoding/json"
	"testing"

	"github.com/marmos91/sipauth/pkg/config"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_UsesYAMLKeys(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "sipauth Configuration", doc.Title)
	for _, key := range []string{"logging", "auth", "hss", "vector_store", "api", "analytics"} {
		assert.Contains(t, doc.Properties, key)
	}
	assert.NotContains(t, doc.Properties, "VectorStore")
}

func TestMaskSecrets(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.API.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.VectorStore.SQL.Postgres.Password = "pgpass"
	cfg.HSS.Subscribers = []hss.Subscriber{
		{IMPI: "alice@ims.example.com", Password: "secret"},
		{IMPI: "bob@ims.example.com", HA1: "5f4dcc3b5aa765d61d8327deb882cf99"},
	}

	masked := maskSecrets(cfg)

	assert.Equal(t, mask, masked.API.JWT.Secret)
	assert.Equal(t, mask, masked.VectorStore.SQL.Postgres.Password)
	assert.Equal(t, mask, masked.HSS.Subscribers[0].Password)
	assert.Equal(t, mask, masked.HSS.Subscribers[1].HA1)
	assert.Equal(t, "alice@ims.example.com", masked.HSS.Subscribers[0].IMPI)

	// The source is untouched.
	assert.Equal(t, "secret", cfg.HSS.Subscribers[0].Password)
	assert.Equal(t, "pgpass", cfg.VectorStore.SQL.Postgres.Password)
}

func TestFlatten(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Auth.Realm = "ims.example.com"
	cfg.HSS.Subscribers = []hss.Subscriber{{IMPI: "alice@ims.example.com", Password: mask}}

	table, err := flatten(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "VALUE"}, table.Headers())

	rows := map[string]string{}
	for _, r := range table.Rows() {
		rows[r[0]] = r[1]
	}
	assert.Equal(t, "ims.example.com", rows["auth.realm"])
	assert.Equal(t, "memory", rows["vector_store.type"])
	assert.Equal(t, "alice@ims.example.com", rows["hss.subscribers[0].impi"])

	for i := 1; i < len(table.Rows()); i++ {
		assert.Less(t, table.Rows()[i-1][0], table.Rows()[i][0])
	}
}
