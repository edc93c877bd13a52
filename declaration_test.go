package todostack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeclaration_OverlaysDefaults(t *testing.T) {
	decl, err := ParseDeclaration([]byte(`
name: Todo
stage: prod
region: ca-central-1
compute:
  timeoutSeconds: 30
  entry:
    packaging: prebuilt
    path: ./dist
    handler: bootstrap
routing:
  kind: http
  corsPreset: none
`))
	require.NoError(t, err)
	assert.Equal(t, "Todo", decl.Name)
	assert.Equal(t, "prod", decl.Stage)
	assert.Equal(t, "provided.al2023", decl.Compute.Runtime)
	assert.Equal(t, 30, decl.Compute.TimeoutSeconds)
	assert.Equal(t, PackagingPrebuilt, decl.Compute.Entry.Packaging)
	assert.Equal(t, RoutingHTTP, decl.Routing.Kind)

	cors, err := decl.Routing.ResolveCORS()
	require.NoError(t, err)
	assert.False(t, cors.Enabled())
}

func TestParseDeclaration_EmptyAndUnknown(t *testing.T) {
	decl, err := ParseDeclaration(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDeclaration(""), decl)

	_, err = ParseDeclaration([]byte("name: x\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestLoadDeclaration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Todo\n"), 0o600))

	decl, err := LoadDeclaration(path)
	require.NoError(t, err)
	assert.Equal(t, "Todo", decl.Name)

	_, err = LoadDeclaration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDeclaration_MarshalRoundTrip(t *testing.T) {
	in := DefaultDeclaration("Todo")
	raw, err := in.Marshal()
	require.NoError(t, err)

	out, err := ParseDeclaration(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvStage:     "test",
		EnvRouting:   "http",
		EnvPackaging: "prebuilt",
		EnvArtifact:  "/tmp/dist",
		EnvTimeout:   "45",
	}
	decl := DefaultDeclaration("Todo")
	decl.Routing.StageName = "v1"
	decl.Compute.Entry.BuildCommand = "make"

	got, err := ApplyEnv(decl, func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, "test", got.Stage)
	assert.Equal(t, RoutingHTTP, got.Routing.Kind)
	assert.Empty(t, got.Routing.StageName)
	assert.Equal(t, PackagingPrebuilt, got.Compute.Entry.Packaging)
	assert.Empty(t, got.Compute.Entry.BuildCommand)
	assert.Equal(t, "/tmp/dist", got.Compute.Entry.Path)
	assert.Equal(t, 45, got.Compute.TimeoutSeconds)

	env[EnvTimeout] = "soon"
	_, err = ApplyEnv(decl, func(k string) string { return env[k] })
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}

func TestResolveCORS(t *testing.T) {
	allowAll, err := RoutingDeclaration{CORSPreset: "Allow-All"}.ResolveCORS()
	require.NoError(t, err)
	assert.True(t, allowAll.AllowsAll())

	custom := CORSPolicy{AllowOrigins: []string{"https://a"}}
	got, err := RoutingDeclaration{CORSPreset: CORSPresetCustom, CORS: custom}.ResolveCORS()
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	_, err = RoutingDeclaration{CORSPreset: "open"}.ResolveCORS()
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}
