package mainboilerplate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Store struct {
		URL string `long:"url" env:"URL" default:"memory://" description:"Store URL"`
	} `group:"Store" namespace:"store" env-namespace:"STORE"`
	Log LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func TestParseConfigLayersIniAndArgs(t *testing.T) {
	var first, second = t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "docstore.ini"), []byte(`
[Store]
URL = sqlite:///var/lib/docstore.db

[Logging]
Level = debug

[Unknown]
other = ignored
`), 0600))

	var cfg testConfig
	var parser = flags.NewParser(&cfg, flags.Default)
	require.NoError(t, ParseConfig(parser, "docstore.ini", []string{first, second}, nil))
	require.Equal(t, "sqlite:///var/lib/docstore.db", cfg.Store.URL)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)

	// Explicit flags take precedence over the file.
	cfg = testConfig{}
	parser = flags.NewParser(&cfg, flags.Default)
	require.NoError(t, ParseConfig(parser, "docstore.ini", []string{first, second},
		[]string{"--log.level", "error"}))
	require.Equal(t, "error", cfg.Log.Level)
	require.Equal(t, flags.Options(flags.Default), parser.Options)
}

func TestParseConfigWithoutFile(t *testing.T) {
	var cfg testConfig
	var parser = flags.NewParser(&cfg, flags.None)
	require.NoError(t, ParseConfig(parser, "missing.ini", []string{t.TempDir()}, nil))
	require.Equal(t, "memory://", cfg.Store.URL)
	require.Equal(t, "warn", cfg.Log.Level)

	var err = ParseConfig(parser, "missing.ini", nil, []string{"--log.level", "chatty"})
	require.Error(t, err)
	require.Equal(t, flags.ErrInvalidChoice, err.(*flags.Error).Type)
}

func TestParseConfigOfMalformedFile(t *testing.T) {
	var dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docstore.ini"), []byte("[Store\nurl"), 0600))

	var cfg testConfig
	var parser = flags.NewParser(&cfg, flags.None)
	require.Error(t, ParseConfig(parser, "docstore.ini", []string{dir}, nil))
	require.Equal(t, flags.None, parser.Options)
}

func TestConfigSearchPath(t *testing.T) {
	t.Setenv("HOME", "/home/someone")
	t.Setenv("APPLICATION_CONFIG_ROOT", "/etc/docstore")

	var path = ConfigSearchPath()
	require.Equal(t, ".", path[0])
	require.Equal(t, "/home/someone/.config/docstore", path[1])
	require.Equal(t, "/etc/docstore", path[len(path)-1])
}

func TestMust(t *testing.T) {
	require.NotPanics(t, func() { Must(nil, "fine") })
	require.Panics(t, func() { Must(os.ErrNotExist, "failed", "path", "/nope") })
}
