package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	p, err := NewProvider()
	require.NoError(t, err)

	opts, err := p.Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultNetworkID, opts.Node.NetworkID)
	assert.Equal(t, defaultListenAddr, opts.P2P.ListenAddr)
	assert.Equal(t, filepath.Join(defaultDataDir, "chaindata"), opts.Storage.Path)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"node": {"network_id": "testnet", "data_dir": "`+dir+`"},
		"p2p": {"listen_addr": "0.0.0.0:40000", "max_peers": 12}
	}`), 0o600))

	p, err := NewProvider()
	require.NoError(t, err)
	opts, err := p.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testnet", opts.Node.NetworkID)
	assert.Equal(t, "0.0.0.0:40000", opts.P2P.ListenAddr)
	assert.Equal(t, 12, opts.P2P.MaxPeers)
	// 未在JSON中出现的字段保留默认值
	assert.Equal(t, defaultRetargetWindow, int(opts.Consensus.RetargetWindow))
	assert.Equal(t, filepath.Join(dir, "chaindata"), opts.Storage.Path)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node": {"network_id": "", "data_dir": "`+dir+`"}}`), 0o600))

	p, err := NewProvider()
	require.NoError(t, err)
	_, err = p.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	p, err := NewProvider()
	require.NoError(t, err)
	_, err = p.Load(path)
	require.Error(t, err)
}

func TestLoadRequiresMinerAddressWhenMiningEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"node": {"network_id": "testnet", "data_dir": "`+dir+`"},
		"mining": {"enabled": true}
	}`), 0o600))

	p, err := NewProvider()
	require.NoError(t, err)
	_, err = p.Load(path)
	require.Error(t, err)
}
