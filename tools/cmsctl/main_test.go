package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

func TestConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cmsctl.yaml")
	require.NoError(t, os.WriteFile(file, []byte("postgres: host=db user=cms\nschema: content\n"), 0o600))

	v := viper.New()
	require.NoError(t, initConfig(v, file))
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "host=db user=cms", cfg.Postgres)
	assert.Equal(t, "content", cfg.Schema)
	assert.Equal(t, "warn", cfg.LogLevel)

	t.Setenv("CMSCTL_SCHEMA", "other")
	t.Setenv("CMSCTL_POSTGRES_PASSWORD", "secret")
	v = viper.New()
	require.NoError(t, initConfig(v, file))
	cfg, err = loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Schema)
	assert.Equal(t, "secret", cfg.PostgresPassword)
}

func TestConfig_Errors(t *testing.T) {
	v := viper.New()
	assert.Error(t, initConfig(v, filepath.Join(t.TempDir(), "missing.yaml")))

	t.Setenv("CMSCTL_POSTGRES", "")
	v = viper.New()
	require.NoError(t, initConfig(v, ""))
	_, err := loadConfig(v)
	assert.Error(t, err)
}

func TestRootCmd_Help(t *testing.T) {
	cmd := newRootCmd(viper.New())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"apply", "describe", "drop", "list", "migrate"} {
		assert.Contains(t, out.String(), sub)
	}

	cmd = newRootCmd(viper.New())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"describe"})
	assert.Error(t, cmd.Execute())
}

func TestPrinting(t *testing.T) {
	product := &catalog.ContentType{
		Name:         "Product",
		Slug:         "product",
		Table:        "products",
		IsPublic:     true,
		HasOwnership: true,
		Fields: []*catalog.ContentField{
			{Name: "title", Type: catalog.FieldText, Settings: catalog.Settings{Required: true}},
			{Name: "tags", Type: catalog.FieldRelation, Settings: catalog.Settings{Multiple: true}},
			{Name: "image", Type: catalog.FieldMedia},
		},
	}
	badge := &catalog.ContentType{Name: "Badge", Slug: "badge", IsComponent: true}

	out := &bytes.Buffer{}
	printTypes(out, []*catalog.ContentType{badge, product})
	assert.Contains(t, out.String(), "public,owned")
	assert.Contains(t, out.String(), "component")
	assert.Contains(t, out.String(), "products")

	out.Reset()
	describe(out, product, []csql.Column{{Name: "id", DataType: "uuid"}, {Name: "image_id", DataType: "uuid", Nullable: true}})
	s := out.String()
	assert.Contains(t, s, "Product (product)")
	assert.Contains(t, s, "(pivot)")
	assert.Contains(t, s, "image_id")
	assert.Contains(t, s, "table products")

	assert.Equal(t, "-", flagString(catalog.Flags{}))
	assert.Equal(t, "single,localized", flagString(catalog.Flags{IsSingle: true, IsLocalized: true}))
}
