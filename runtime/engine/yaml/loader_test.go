package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/remapper"
)

const ticketsYAML = `
name: Tickets
defaultPage: overview
pages:
  - name: overview
    actions:
      onLoad:
        type: request
        url: https://api.example.com/tickets
        remapAfter: {prop: items}
  - name: create
    type: flow
    back: discard
    steps:
      - name: details
        validate: {prop: title}
        actions:
          onSubmit:
            type: flow.next
      - name: confirm
`

const ticketsJSON = `{
  "id": "tickets-json",
  "pages": [
    {"name": "overview", "actions": {"onLoad": {"type": "static", "value": {"b": 1, "a": 2}}}}
  ]
}`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(ticketsYAML))
	require.NoError(t, err)

	assert.Equal(t, "Tickets", def.Name)
	assert.Equal(t, "overview", def.DefaultPage)
	require.Len(t, def.Pages, 2)

	overview := def.Pages[0]
	assert.Equal(t, runtime.PageTypePage, overview.Type)
	require.Contains(t, overview.Actions, "onLoad")
	assert.EqualValues(t, "request", overview.Actions["onLoad"].Type)

	create := def.Pages[1]
	assert.True(t, create.IsFlow())
	assert.Equal(t, "discard", create.Back)
	require.Len(t, create.Steps, 2)
	assert.False(t, create.Steps[0].Validate.IsZero())
	assert.True(t, create.Steps[1].Validate.IsZero())
	assert.Contains(t, create.Steps[0].Actions, "onSubmit")
}

func TestParse_KeepsKeyOrder(t *testing.T) {
	def, err := Parse([]byte(ticketsJSON))
	require.NoError(t, err)

	value, ok := def.Pages[0].Actions["onLoad"].Fields["value"].(*remapper.Object)
	require.True(t, ok, "expected an ordered object, got %T", def.Pages[0].Actions["onLoad"].Fields["value"])
	assert.Equal(t, []string{"b", "a"}, value.Keys())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("pages: ["))
	assert.ErrorContains(t, err, "unmarshalling")
}

func TestAppLoader_Load(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "tickets.yaml")
	jsonPath := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte(ticketsYAML), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(ticketsJSON), 0o644))

	loader := NewAppLoader()

	def, err := loader.Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "tickets", def.ID, "the file name is the default id")

	def, err = loader.Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "tickets-json", def.ID)

	_, err = loader.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestAppLoader_LoadApps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tickets.yml"), []byte(ticketsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tickets.json"), []byte(ticketsJSON), 0o644))

	apps, err := runtime.LoadApps(dir, NewAppLoader(), runtime.NewContainer(), nil)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	assert.Contains(t, apps, "tickets")
	assert.Contains(t, apps, "tickets-json")
}
