// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesGroupsAndHostSettings(t *testing.T) {
	path := writeInventory(t, `
# production fleet
web-01 ansible_user=deploy ansible_port=2222
; legacy comment style

[db]
db-01 ansible_user=postgres ansible_password=secret
db-02 user=postgres port=5433
`)

	inv, err := Load(path)
	require.NoError(t, err)

	hosts := inv.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, Host{Hostname: "web-01", User: "deploy", Port: 2222}, hosts[0])
	assert.Equal(t, Host{Hostname: "db-01", User: "postgres", Port: 22, Password: "secret"}, hosts[1])
	assert.Equal(t, Host{Hostname: "db-02", User: "postgres", Port: 5433}, hosts[2])

	db := inv.Group("db")
	require.Len(t, db, 2)
	assert.Equal(t, "db-01", db[0].Hostname)

	all := inv.Group(DefaultGroup)
	assert.Len(t, all, 3, "every host belongs to the default group")

	assert.Equal(t, []string{"all", "db"}, inv.Groups())
}

func TestLoadRejectsMalformedLines(t *testing.T) {
	_, err := Load(writeInventory(t, "[db\nweb-01\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated group header")

	_, err = Load(writeInventory(t, "web-01 bogus\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = Load(writeInventory(t, "web-01 port=abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestLimitIntersectsHosts(t *testing.T) {
	inv, err := Load(writeInventory(t, "web-01\nweb-02\ndb-01\n"))
	require.NoError(t, err)

	hosts, err := inv.Limit("web-02, db-01")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "web-02", hosts[0].Hostname)
	assert.Equal(t, "db-01", hosts[1].Hostname)

	// Empty limit keeps everything.
	hosts, err = inv.Limit("")
	require.NoError(t, err)
	assert.Len(t, hosts, 3)
}

func TestLimitEmptyIntersectionIsAnError(t *testing.T) {
	inv, err := Load(writeInventory(t, "web-01\n"))
	require.NoError(t, err)

	_, err = inv.Limit("nosuchhost")
	require.Error(t, err)
	var verr *pkgerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Suggestion)
}
