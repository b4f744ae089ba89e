package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	q := BuildQuery("jordan fleer", 20, 10)

	require.Equal(t, 20, q["from"])
	require.Equal(t, 10, q["size"])

	mm := q["query"].(map[string]any)["multi_match"].(map[string]any)
	require.Equal(t, "jordan fleer", mm["query"])
	require.Equal(t, "AUTO", mm["fuzziness"])

	// Name and player carry the boost.
	fields := mm["fields"].([]string)
	require.Contains(t, fields, "name^2")
	require.Contains(t, fields, "player^2")
	require.Contains(t, fields, "description")
}
