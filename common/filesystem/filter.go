package filesystem

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dsnet/golib/unitconv"
	"github.com/expr-lang/expr"
)

// FileInfo is the environment filter expressions are evaluated against.
type FileInfo struct {
	Path  string    // Path relative to the root of the copied tree
	Name  string    // Base name of the file
	Size  int64     // File size in bytes
	Mode  uint32    // stat style mode bits (type + permissions)
	Perm  uint32    // just the permission bits (mode & 0777)
	Mtime time.Time // Modification time
}

var (
	fileTypeMask = 0o170000
	fileTypes    = map[string]uint32{"file": 0o100000, "directory": 0o040000, "symlink": 0o120000}
	fileTypeRe   = regexp.MustCompile(`\b(?i)type\s*(==|!=)\s*((?:file|directory|symlink)(?:\s*,\s*(?:file|directory|symlink))*)\b`)
	permOctRe    = regexp.MustCompile(`\b(?i)(perm)\s*(==|!=|<=|>=|<|>)\s*(0?[0-7]{3,4})\b`)
	mtimeRe      = regexp.MustCompile(`\b(?i)(mtime)\s*(<=|>=|<|>)\s*([0-9]+(?:\.[0-9]+)?[smhdMyw])\b`)
	sizeRe       = regexp.MustCompile(`\b(?i)(size)\s*(<=|>=|<|>|!=|==)\s*([0-9]+(?:\.[0-9]+)?(?:B|[kKMGT]i?B))\b`)
	identRe      = regexp.MustCompile(`\b(?i)(mtime|size|name|path|mode|perm)\b`)
	fieldMap     = map[string]string{
		"mtime": "Mtime", "size": "Size", "name": "Name",
		"path": "Path", "mode": "Mode", "perm": "Perm",
	}
)

const FilterFilesHelp = "Only copy files matching an expression: fields(name/path <string>, " +
	"perm <octal[like 644, 0644]>, type <file|directory|symlink>, mtime <duration[like 1h, 4d, 5M, 1y]>, " +
	"size <bytes[like 1B, 2kB, 3MiB]>); operators(==,!=,<,>,<=,>=); " +
	"helpers(glob([name|path], pattern), regex([name|path], pattern)); logic(and|or|not); " +
	"Example: --filter=\"size < 10MiB and not glob(name, '*.pyc')\""

// FileInfoFilter returns true if a file should be kept.
type FileInfoFilter func(FileInfo) (bool, error)

// CompileFilter turns a filter expression into a FileInfoFilter. The expression is rewritten from
// the user friendly syntax (size units, relative times, file types) into an expr program.
func CompileFilter(query string) (FileInfoFilter, error) {
	q := preprocessFilter(query)
	prog, err := expr.Compile(q,
		expr.Env(FileInfo{}),
		expr.AsBool(),
		expr.Function("ago", func(params ...any) (any, error) { return ago(params[0].(string)) }),
		expr.Function("bytes", func(params ...any) (any, error) { return parseBytes(params[0].(string)) }),
		expr.Function("glob", func(params ...any) (any, error) { return filepath.Match(params[1].(string), params[0].(string)) }),
		expr.Function("regex", func(params ...any) (any, error) { return regexp.MatchString(params[1].(string), params[0].(string)) }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	return func(fi FileInfo) (bool, error) {
		out, err := expr.Run(prog, fi)
		if err != nil {
			return false, fmt.Errorf("filter eval %q on %s: %w", query, fi.Path, err)
		}
		keep, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("filter expression resulted in a non-boolean value of type %T", out)
		}
		return keep, nil
	}, nil
}

func preprocessFilter(q string) string {
	q = permOctRe.ReplaceAllStringFunc(q, func(m string) string {
		sub := permOctRe.FindStringSubmatch(m)
		val, err := strconv.ParseInt(strings.TrimPrefix(sub[3], "0"), 8, 64)
		if err != nil {
			return m
		}
		return fmt.Sprintf("%s %s %d", sub[1], sub[2], val)
	})
	q = fileTypeRe.ReplaceAllStringFunc(q, func(m string) string {
		parts := fileTypeRe.FindStringSubmatch(m)
		clauses := []string{}
		for name := range strings.SplitSeq(parts[2], ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			clauses = append(clauses, fmt.Sprintf("bitand(int(Mode), %d) == %d", fileTypeMask, fileTypes[name]))
		}
		clause := "(" + strings.Join(clauses, " or ") + ")"
		if parts[1] == "!=" {
			return "not " + clause
		}
		return clause
	})
	// "mtime > 1d" means older than one day so the comparison against a point in time is inverted.
	q = mtimeRe.ReplaceAllStringFunc(q, func(m string) string {
		parts := mtimeRe.FindStringSubmatch(m)
		op := map[string]string{">": "<", "<": ">", ">=": "<=", "<=": ">="}[parts[2]]
		return fmt.Sprintf("Mtime %s ago(%q)", op, parts[3])
	})
	q = sizeRe.ReplaceAllString(q, `$1 $2 bytes("$3")`)
	q = identRe.ReplaceAllStringFunc(q, func(s string) string {
		if goF, ok := fieldMap[strings.ToLower(s)]; ok {
			return goF
		}
		return s
	})
	return q
}

// FileInfoFromStat converts a fs.FileInfo into the filter environment. Path should be relative to
// the tree being processed so expressions don't depend on where the tree lives.
func FileInfoFromStat(path string, info fs.FileInfo) FileInfo {
	mode := uint32(info.Mode().Perm())
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		mode |= fileTypes["symlink"]
	case info.IsDir():
		mode |= fileTypes["directory"]
	default:
		mode |= fileTypes["file"]
	}
	return FileInfo{
		Path:  path,
		Name:  info.Name(),
		Size:  info.Size(),
		Mode:  mode,
		Perm:  uint32(info.Mode().Perm()),
		Mtime: info.ModTime(),
	}
}

func ago(durationStr string) (time.Time, error) {
	d, err := parseExtendedDuration(durationStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(-d), nil
}

// parseExtendedDuration supports Go durations plus days (d), weeks (w), months (M) and years (y).
func parseExtendedDuration(s string) (time.Duration, error) {
	factors := map[byte]time.Duration{
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
		'y': 365 * 24 * time.Hour,
	}
	factor, ok := factors[s[len(s)-1]]
	if !ok {
		return time.ParseDuration(s)
	}
	f, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(f * float64(factor)), nil
}

// parseBytes converts sizes like 10B, 2kB, 3MB or 4MiB into a byte count.
func parseBytes(sizeStr string) (int64, error) {
	v, err := unitconv.ParsePrefix(strings.TrimSuffix(sizeStr, "B"), unitconv.AutoParse)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	return int64(v), nil
}
