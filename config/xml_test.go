package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxcbox/lxcbox/domain"
)

func sampleDefinition() *domain.Definition {
	return &domain.Definition{
		UUID:      uuid.New(),
		Name:      "web1",
		OSHint:    "exe",
		MaxMemory: 536870912,
		InitPath:  "/sbin/init",
		Console:   "/dev/pts/4",
		Interfaces: []*domain.NetIface{
			{Type: domain.NetIfaceBridge, Target: "br0", SubnetCIDR: "10.44.0.0/24", NAT: true, ParentVeth: "veth0a1b2", ContainerVeth: "veth0c3d4"},
			{Type: domain.NetIfaceNetwork, Target: "default"},
		},
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	def := sampleDefinition()

	data, err := Serialize(def)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, def.UUID, got.UUID)
	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, def.OSHint, got.OSHint)
	assert.Equal(t, def.MaxMemory, got.MaxMemory)
	assert.Equal(t, def.InitPath, got.InitPath)
	assert.Equal(t, def.Console, got.Console)
	require.Len(t, got.Interfaces, 2)
	assert.Equal(t, domain.NetIfaceBridge, got.Interfaces[0].Type)
	assert.Equal(t, "veth0a1b2", got.Interfaces[0].ParentVeth)
	assert.Equal(t, "10.44.0.0/24", got.Interfaces[0].SubnetCIDR)
	assert.True(t, got.Interfaces[0].NAT)
	assert.Equal(t, domain.NetIfaceNetwork, got.Interfaces[1].Type)
}

func TestParseRejectsBadUUID(t *testing.T) {
	_, err := Parse([]byte(`<domain><uuid>not-a-uuid</uuid><name>x</name></domain>`))
	assert.Error(t, err)
}

func TestPathLayout(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/lxcbox", "web1.xml"), Path("/etc/lxcbox", "web1"))
}

func TestSaveDeleteLifecycle(t *testing.T) {
	dir := t.TempDir()
	def := sampleDefinition()

	require.NoError(t, Save(dir, def))

	path := Path(dir, def.Name)
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, Delete(dir, def.Name))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, Delete(dir, def.Name))
}

func TestLoadAllSkipsMalformedAndNonXML(t *testing.T) {
	dir := t.TempDir()
	def := sampleDefinition()
	require.NoError(t, Save(dir, def))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xml"), []byte("<domain><uuid>bad</uuid></domain>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	defs, errs := LoadAll(dir)
	require.Len(t, defs, 1)
	assert.Equal(t, def.Name, defs[0].Name)
	require.Len(t, errs, 1)
}

func TestLoadAllOnMissingDirReturnsEmpty(t *testing.T) {
	defs, errs := LoadAll(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Nil(t, defs)
	assert.Nil(t, errs)
}
