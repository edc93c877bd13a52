package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHandler_RequiresTableName(t *testing.T) {
	_, err := newHandler(func(string) string { return "" })
	require.ErrorContains(t, err, "TABLE_NAME is required")
}

func TestNewHandler_RejectsBadLogLevel(t *testing.T) {
	env := map[string]string{"TABLE_NAME": "todos", EnvLogLevel: "loud"}
	_, err := newHandler(func(k string) string { return env[k] })
	require.ErrorContains(t, err, "init logger")
}
