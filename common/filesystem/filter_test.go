package filesystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilter_ValidExpressions(t *testing.T) {
	now := time.Now()
	fi := FileInfo{
		Path:  "src/app/main.py",
		Name:  "main.py",
		Size:  123456,
		Mode:  0o100644,
		Perm:  0o644,
		Mtime: now.Add(-2 * time.Hour),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"MatchName", `name == "main.py"`, true},
		{"NoMatchName", `name == "other.py"`, false},
		{"MatchPath", `path == "src/app/main.py"`, true},
		{"MatchSize", `size == 123456`, true},
		{"NoMatchSize", `size > 200000`, false},
		{"MatchPermOctal", `perm == 644`, true},
		{"MatchPermLeadingZero", `perm == 0644`, true},
		{"MtimeOlderThan1h", `mtime > 1h`, true},
		{"MtimeNewerThan1h", `mtime < 1h`, false},
		{"MtimeDays", `mtime < 1d`, true},
		{"SizeUnitsKB", `size >= 120kB`, true},
		{"SizeUnitsMiB", `size < 1MiB`, true},
		{"GlobName", `glob(name, "*.py")`, true},
		{"NoGlobMatch", `glob(name, "*.pyc")`, false},
		{"RegexPath", `regex(path, "^src/")`, true},
		{"Combined", `size < 10MiB and not glob(name, "*.pyc")`, true},
		{"Negated", `!(perm != 0644)`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := CompileFilter(tt.expr)
			require.NoError(t, err, "CompileFilter(%q) returned error", tt.expr)
			ok, err := filter(fi)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ok, "filter(%q)", tt.expr)
		})
	}
}

func TestCompileFilter_TypeExpressions(t *testing.T) {
	cases := []struct {
		name string
		expr string
		mode uint32
		want bool
	}{
		{"EqualsFile", `type == file`, 0o100644, true},
		{"EqualsList", `type == file, directory`, 0o040755, true},
		{"MixedCase", `type == SymLink`, 0o120777, true},
		{"NotEqualsDirectory", `type != directory`, 0o100644, true},
		{"NotEqualsMultiple", `type != file, symlink`, 0o100644, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := CompileFilter(tt.expr)
			require.NoError(t, err)
			ok, err := filter(FileInfo{Name: "x", Mode: tt.mode, Perm: tt.mode & 0o777})
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCompileFilter_Invalid(t *testing.T) {
	for _, q := range []string{"not_a_valid_expr(", `type == socket`, `size + 1`} {
		t.Run(q, func(t *testing.T) {
			_, err := CompileFilter(q)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestPreprocessFilter(t *testing.T) {
	cases := []struct {
		input    string
		contains string
	}{
		{`perm == 0755`, `Perm == 493`},
		{`mtime > 1d`, `Mtime < ago("1d")`},
		{`size >= 2MiB`, `Size >= bytes("2MiB")`},
		{`type != file`, `not (bitand(int(Mode), 61440) == 32768)`},
	}
	for _, tt := range cases {
		t.Run(tt.input, func(t *testing.T) {
			assert.Contains(t, preprocessFilter(tt.input), tt.contains)
		})
	}
}

func TestParseBytes(t *testing.T) {
	cases := map[string]int64{
		"10B":  10,
		"2kB":  2000,
		"3MB":  3_000_000,
		"4MiB": 4 << 20,
		"1GiB": 1 << 30,
	}
	for in, want := range cases {
		got, err := parseBytes(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
