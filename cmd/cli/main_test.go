package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, commands *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*commands = append(*commands, req.Command)
		if req.Command == "bogus" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "unknown command: bogus"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "mode set to Network"})
	})
	mux.HandleFunc("/connection", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"uri": "tcp://10.0.0.5:9100"})
	})
	mux.HandleFunc("/selector", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"mode":    "network",
			"network": map[string]interface{}{"host": "10.0.0.5", "port": ""},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPassThroughCommand(t *testing.T) {
	var commands []string
	srv := fakeServer(t, &commands)

	out, err := execute(t, "-s", srv.URL, "mode", "network")
	require.NoError(t, err)
	assert.Equal(t, []string{"mode network"}, commands)
	assert.Contains(t, out, "mode set to Network")

	_, err = execute(t, "-s", srv.URL, "exec", "cert", "/tmp/my ca.pem")
	require.NoError(t, err)
	assert.Equal(t, `cert "/tmp/my ca.pem"`, commands[1])
}

func TestCommandError(t *testing.T) {
	var commands []string
	srv := fakeServer(t, &commands)

	_, err := execute(t, "-s", srv.URL, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: bogus")
}

func TestBuildAndState(t *testing.T) {
	var commands []string
	srv := fakeServer(t, &commands)

	out, err := execute(t, "-s", srv.URL, "build")
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:9100\n", out)

	out, err = execute(t, "-s", srv.URL, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: network")
	assert.Contains(t, out, `network: host="10.0.0.5"`)

	out, err = execute(t, "-s", srv.URL, "--json", "build")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uri":"tcp://10.0.0.5:9100"}`, out)
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, `ip 10.0.0.5`, joinArgs([]string{"ip", "10.0.0.5"}))
	assert.Equal(t, `host ""`, joinArgs([]string{"host", ""}))
}
