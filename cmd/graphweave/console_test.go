package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeo4jBrowserURL(t *testing.T) {
	url, err := neo4jBrowserURL("bolt://localhost:7687")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7474", url)

	url, err = neo4jBrowserURL("neo4j+s://graph.example.com:7687")
	require.NoError(t, err)
	assert.Equal(t, "https://graph.example.com:7474", url)

	_, err = neo4jBrowserURL("not a uri")
	assert.Error(t, err)
}
