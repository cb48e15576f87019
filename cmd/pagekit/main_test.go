package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eringen/pagekit"
)

func TestRunInitWritesEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	var out bytes.Buffer

	require.NoError(t, runInit(&out, dir, "nina", false))
	assert.Contains(t, out.String(), ".env")

	path := filepath.Join(dir, ".env")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "nina", env["ADMIN_USERNAME"])
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), env["JWT_SECRET"])
	assert.Equal(t, "5001", env["PORT"])
}

func TestRunInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(&bytes.Buffer{}, dir, "admin", false))
	first, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)

	err = runInit(&bytes.Buffer{}, dir, "admin", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, runInit(&bytes.Buffer{}, dir, "admin", true))
	second, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.NotEqual(t, first["JWT_SECRET"], second["JWT_SECRET"])
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "pagekit dev\n", out.String())
}

func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	app := pagekit.New(pagekit.Config{
		JWTSecret:     "cli-test-secret",
		AdminUsername: "admin",
		AdminPassword: "hunter2",
		DatabasePath:  filepath.Join(dir, "pagekit.db"),
		UploadDir:     filepath.Join(dir, "uploads"),
	}, pagekit.WithLogger(zap.NewNop()))
	require.NoError(t, app.Init(context.Background()))
	srv := httptest.NewServer(app.Echo)
	t.Cleanup(func() {
		srv.Close()
		app.Store.Close()
	})
	return srv.URL + "/api"
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRemoteCommands(t *testing.T) {
	server := startServer(t)

	out, err := run(t, "", "health", "--server", server)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "OK"`)

	out, err = run(t, "", "login", "--server", server, "-u", "admin", "-p", "hunter2")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	_, err = run(t, "", "login", "--server", server, "-u", "admin", "-p", "wrong")
	require.Error(t, err)

	out, err = run(t, "", "verify", "--server", server, "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	_, err = run(t, `{"portfolioIntro":"From the CLI"}`, "page", "save", "-", "--server", server, "--token", token)
	require.NoError(t, err)

	out, err = run(t, "", "page", "get", "--server", server)
	require.NoError(t, err)
	var data pagekit.PageData
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "From the CLI", data.PortfolioIntro)

	out, err = run(t, "", "images", "list", "--server", server, "--token", token)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	_, err = run(t, "", "images", "list", "--server", server, "--token", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")

	_, err = run(t, "not json", "page", "save", "-", "--server", server, "--token", token)
	require.Error(t, err)
}
