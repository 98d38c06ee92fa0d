package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	cfgFlag := rootCmd.Flags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "config/config.yaml", cfgFlag.DefValue)
	assert.Equal(t, "config/config.yaml", viper.GetString("config"))

	require.NoError(t, rootCmd.Flags().Set("dir", "/srv/bars"))
	t.Cleanup(func() { _ = rootCmd.Flags().Set("dir", "") })

	assert.Equal(t, "/srv/bars", viper.GetString("dir"))
}
