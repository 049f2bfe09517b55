package es

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQueryScopesToUser(t *testing.T) {
	q := buildSearchQuery("user-1", "sunset", 20)

	body, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded struct {
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Must []struct {
					Match map[string]string `json:"match"`
				} `json:"must"`
				Filter []struct {
					Term map[string]string `json:"term"`
				} `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
		Sort []map[string]struct {
			Order string `json:"order"`
		} `json:"sort"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, 20, decoded.Size)
	require.Len(t, decoded.Query.Bool.Must, 1)
	assert.Equal(t, "sunset", decoded.Query.Bool.Must[0].Match["content"])

	// user_id 过滤是查询体的一部分，调用方无法绕开
	require.Len(t, decoded.Query.Bool.Filter, 1)
	assert.Equal(t, "user-1", decoded.Query.Bool.Filter[0].Term["user_id"])

	require.Len(t, decoded.Sort, 1)
	assert.Equal(t, "desc", decoded.Sort[0]["created_at"].Order)
}
