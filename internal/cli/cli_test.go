package cli_test

import (
	"bytes"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/internal/cli"
	"github.com/mickamy/docmap/internal/modeldef"
	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/store/sqldoc"
)

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := cli.NewRootCmd("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "docmap test\n", out)
}

func TestCheck(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := run(t, "check", "--schema", testdataPath("models.go"))
	require.NoError(t, err)

	for _, want := range []string{
		"account_memberships",
		"has_many_through",
		"account_memberships.account_user",
		"account_user_id",
		"belongs_to",
	} {
		assert.Contains(t, out, want)
	}
}

func TestCheckSchemaError(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := run(t, "check", "--schema", testdataPath("broken.go"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memberships")
}

func TestCheckNeedsSchema(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := run(t, "check")
	assert.ErrorContains(t, err, "no schema file")
}

func TestInitMemoryWithMetrics(t *testing.T) {
	t.Chdir(t.TempDir())

	out, stderr, err := run(t, "init", "--schema", testdataPath("models.go"), "--metrics")
	require.NoError(t, err)
	assert.Equal(t, "3 collections ready (memory)\n", out)
	assert.Contains(t, stderr, "ensure")
	assert.Contains(t, stderr, "account_users")
}

func TestCount(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	dsn := "file:" + filepath.Join(dir, "docmap.db")

	_, _, err := run(t, "init", "--schema", testdataPath("models.go"), "--driver", "sqlite", "--dsn", dsn)
	require.NoError(t, err)

	accountID := seed(t, dsn)

	tests := []struct {
		name  string
		where []string
		want  string
	}{
		{name: "all", want: "3"},
		{name: "target field", where: []string{"login=foo"}, want: "1"},
		{name: "join field", where: []string{"role=member"}, want: "3"},
		{name: "no match", where: []string{"login=qux"}, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{
				"count", "--schema", testdataPath("models.go"), "--driver", "sqlite", "--dsn", dsn,
				"--model", "Account", "--id", accountID, "--assoc", "users",
			}
			for _, w := range tt.where {
				args = append(args, "--where", w)
			}
			out, _, err := run(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}

	_, _, err = run(t, "count", "--schema", testdataPath("models.go"), "--driver", "sqlite", "--dsn", dsn,
		"--model", "Account", "--id", accountID, "--assoc", "users", "--where", "login")
	assert.ErrorContains(t, err, "field=value")

	_, _, err = run(t, "count", "--schema", testdataPath("models.go"), "--driver", "sqlite", "--dsn", dsn,
		"--model", "Account", "--id", "missing", "--assoc", "users")
	assert.ErrorIs(t, err, odm.ErrNotFound)
}

// seed stores one account with three users and returns the account id.
func seed(t *testing.T, dsn string) string {
	t.Helper()
	ctx := t.Context()

	schema, _, err := modeldef.Load(testdataPath("models.go"))
	require.NoError(t, err)
	raw, err := sqldoc.Open("sqlite", dsn)
	require.NoError(t, err)
	db := odm.New(sqldoc.NewStore(raw), schema)
	defer func() { _ = db.Close() }()

	account, err := db.New("Account", odm.Attrs{"name": "acme"})
	require.NoError(t, err)
	users, err := account.Many("users")
	require.NoError(t, err)
	for _, login := range []string{"foo", "bar", "baz"} {
		_, err := users.Build(odm.Attrs{"login": login})
		require.NoError(t, err)
	}
	require.NoError(t, account.Save(ctx))
	return account.ID()
}
