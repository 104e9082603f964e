// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbavid/verbavid-api/internal/cloud"
)

type cliEnv struct {
	configDir string
	outputDir string
}

func setupCLITestEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{configDir: dir, outputDir: filepath.Join(dir, "out")}
	toml := fmt.Sprintf(`[database]
driver = "sqlite"
dsn = %q

[auth]
bcrypt_cost = 4

[storage]
output_dir = %q
retention = "1h"
`, filepath.Join(dir, "verbavid.db"), env.outputDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(toml), 0o644))
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--runtime", "test"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestAdminCreateAndCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "admin", "check", "root@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "no such account")

	_, err = env.run(t, "admin", "create", "--email", "root@example.com", "--password", "123")
	assert.Error(t, err)

	out, err = env.run(t, "admin", "create", "--email", "Root@Example.com", "--password", "s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin ready: root@example.com")

	out, err = env.run(t, "admin", "check", "root@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "root@example.com: admin")
}

func TestAdminCreateReadsPasswordFromEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv(EnvAdminPassword, "from-the-env")

	out, err := env.run(t, "admin", "create", "--email", "ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin ready")
}

func TestUsersCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users")

	_, err = env.run(t, "admin", "create", "--name", "Ops Team", "--email", "ops@example.com", "--password", "password1")
	require.NoError(t, err)

	out, err = env.run(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Ops Team")
	assert.Contains(t, out, "ops@example.com")
	assert.Contains(t, out, "admin")

	out, err = env.run(t, "users", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total users: 1")
	assert.Contains(t, out, time.Now().UTC().Format("2006-01"))

	out, err = env.run(t, "users", "reset-token", "ops@example.com")
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimSpace(out))
	assert.NoError(t, err)

	_, err = env.run(t, "users", "reset-token", "ghost@example.com")
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.outputDir, uuid.NewString())
	fresh := filepath.Join(env.outputDir, uuid.NewString())
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err := env.run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 render directories")
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}

func TestRenderCommandRequiresOneInput(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "render")
	assert.Error(t, err)
	_, err = env.run(t, "render", "--prompt", "cats", "--file", "notes.txt")
	assert.Error(t, err)
}
