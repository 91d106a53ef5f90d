package util

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/relaydeck/deploykit/common/filesystem"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type PathInputType int

const (
	PathInputInvalid PathInputType = iota
	PathInputStdin
	PathInputRecursion
	PathInputList
)

func (t PathInputType) String() string {
	switch t {
	case PathInputStdin:
		return "stdin"
	case PathInputRecursion:
		return "recursion"
	case PathInputList:
		return "list"
	default:
		return "unknown"
	}
}

// ManifestExtensions are the file extensions considered when walking a directory for manifests.
var ManifestExtensions = []string{".yaml", ".yml"}

// PathInputMethod is used to configure how manifest paths are provided to ProcessPaths(). It must
// be initialized using DeterminePathInputMethod() before first use.
type PathInputMethod struct {
	pathsViaStdin  bool
	stdinDelimiter byte
	stdin          *os.File
	// Provide a single directory to deploy every manifest below it.
	pathsViaRecursion string
	pathsViaList      []string
	inputType         PathInputType
}

func (m PathInputMethod) Get() PathInputType {
	return m.inputType
}

// DeterminePathInputMethod() processes user configuration to determine how paths are provided. If
// a single path "-" is provided, then paths are read from stdin. If a single path and the recurse
// flag is set, then every manifest below that directory is used. Otherwise one or more paths can
// be specified directly.
func DeterminePathInputMethod(paths []string, recurse bool, stdinDelimiter string) (PathInputMethod, error) {
	pm := PathInputMethod{}
	if pathsLen := len(paths); pathsLen == 0 {
		return pm, fmt.Errorf("nothing to process (no paths were specified)")
	} else if pathsLen == 1 {
		if paths[0] == "-" {
			var err error
			pm.pathsViaStdin = true
			pm.stdin = os.Stdin
			pm.inputType = PathInputStdin
			pm.stdinDelimiter, err = GetStdinDelimiterFromString(stdinDelimiter)
			if err != nil {
				return pm, err
			}
		} else if recurse {
			pm.pathsViaRecursion = paths[0]
			pm.inputType = PathInputRecursion
		} else {
			pm.pathsViaList = paths
			pm.inputType = PathInputList
		}
	} else {
		if recurse {
			return pm, fmt.Errorf("only one path can be specified with the recurse option")
		}
		pm.pathsViaList = paths
		pm.inputType = PathInputList
	}
	return pm, nil
}

// GetStdinDelimiterFromString accepts a single character or one of the escapes "\n", "\0" and "\t".
func GetStdinDelimiterFromString(delimiter string) (byte, error) {
	switch delimiter {
	case "", "\\n", "\n":
		return '\n', nil
	case "\\0", "\x00":
		return 0, nil
	case "\\t", "\t":
		return '\t', nil
	}
	if len(delimiter) != 1 {
		return 0, fmt.Errorf("invalid delimiter %q: must be a single character", delimiter)
	}
	return delimiter[0], nil
}

// ProcessPathOpts contains any settings that should always be determined by the backend.
type ProcessPathOpts struct {
	FilterExpr string
	Fs         afero.Fs
}

type ProcessPathOpt func(*ProcessPathOpts)

// FilterExpr only keeps paths whose file info matches the filter expression.
func FilterExpr(f string) ProcessPathOpt {
	return func(args *ProcessPathOpts) {
		args.FilterExpr = f
	}
}

func WithFs(fsys afero.Fs) ProcessPathOpt {
	return func(args *ProcessPathOpts) {
		args.Fs = fsys
	}
}

// ProcessPaths() calls processEntry for every path provided by the PathInputMethod. By default
// paths are processed in parallel based on the global num-workers flag, so the order results are
// returned is not stable.
//
// It returns a ResultT channel where the result for each entry will be sent. The ResultT channel
// will be closed once all entries are processed, or if any error occurs after all valid results are
// sent to the channel. When any walker or worker returns an error, the shared context is cancelled;
// in-flight calls to processEntry are allowed to finish, but no new work is started.
func ProcessPaths[ResultT any](
	ctx context.Context,
	method PathInputMethod,
	singleWorker bool,
	processEntry func(ctx context.Context, path string) (ResultT, error),
	opts ...ProcessPathOpt,
) (<-chan ResultT, func() error) {

	numWorkers := 1
	if !singleWorker {
		numWorkers = max(viper.GetInt(config.NumWorkersKey), 1)
	}

	pathsGroup, pathsGroupCtx := errgroup.WithContext(ctx)
	paths := make(chan string, numWorkers*4)
	pathsGroup.Go(func() error {
		defer close(paths)
		return StreamPaths(pathsGroupCtx, method, paths, opts...)
	})

	processGroup, processGroupCtx := errgroup.WithContext(ctx)
	results := make(chan ResultT, numWorkers*4)
	processGroup.Go(func() (err error) {
		defer close(results)
		defer func() {
			err = WaitForLastStage(pathsGroup.Wait, err, paths)
		}()
		err = startProcessing(processGroupCtx, paths, results, processEntry, numWorkers)
		return err
	})

	return results, processGroup.Wait
}

// StreamPaths sends every path provided by method that matches the optional filter to out.
func StreamPaths(ctx context.Context, method PathInputMethod, out chan<- string, opts ...ProcessPathOpt) error {
	args := &ProcessPathOpts{Fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(args)
	}

	var filter filesystem.FileInfoFilter
	if args.FilterExpr != "" {
		var err error
		filter, err = filesystem.CompileFilter(args.FilterExpr)
		if err != nil {
			return fmt.Errorf("invalid filter %q: %w", args.FilterExpr, err)
		}
	}

	switch {
	case method.pathsViaStdin:
		return walkStdin(ctx, args.Fs, method.stdin, method.stdinDelimiter, out, filter)
	case method.pathsViaRecursion != "":
		return walkDir(ctx, args.Fs, method.pathsViaRecursion, out, filter)
	default:
		return walkList(ctx, args.Fs, method.pathsViaList, out, filter)
	}
}

func startProcessing[ResultT any](
	ctx context.Context,
	paths <-chan string,
	results chan<- ResultT,
	processEntry func(ctx context.Context, path string) (ResultT, error),
	numWorkers int,
) error {

	g, gCtx := errgroup.WithContext(ctx)
	for range numWorkers {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case path, ok := <-paths:
					if !ok {
						return nil
					}
					result, err := processEntry(gCtx, path)
					if err != nil {
						return err
					}

					select {
					case <-gCtx.Done():
						return gCtx.Err()
					case results <- result:
					}
				}
			}
		})
	}

	return g.Wait()
}

func walkStdin(ctx context.Context, fsys afero.Fs, stdin *os.File, delimiter byte, paths chan<- string, filter filesystem.FileInfoFilter) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		for i, b := range data {
			if b == delimiter {
				return i + 1, data[:i], nil
			}
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	})
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}
		if err := pushFilteredPath(ctx, fsys, path, filter, paths); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func walkList(ctx context.Context, fsys afero.Fs, pathList []string, paths chan<- string, filter filesystem.FileInfoFilter) error {
	for _, path := range pathList {
		if err := pushFilteredPath(ctx, fsys, path, filter, paths); err != nil {
			return err
		}
	}
	return nil
}

func walkDir(ctx context.Context, fsys afero.Fs, startPath string, paths chan<- string, filter filesystem.FileInfoFilter) error {
	err := afero.Walk(fsys, startPath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isManifest(path) {
			return nil
		}
		return pushFilteredPath(ctx, fsys, path, filter, paths)
	})
	if err != nil {
		return fmt.Errorf("unable to recursively walk directory: %w", err)
	}
	return nil
}

func isManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ManifestExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func pushFilteredPath(ctx context.Context, fsys afero.Fs, path string, filter filesystem.FileInfoFilter, paths chan<- string) error {
	if filter != nil {
		info, err := fsys.Stat(path)
		if err != nil {
			return fmt.Errorf("unable to apply filter to %s: %w", path, err)
		}
		keep, err := filter(filesystem.FileInfoFromStat(path, info))
		if err != nil {
			return fmt.Errorf("unable to apply filter to %s: %w", path, err)
		}
		if !keep {
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case paths <- path:
	}
	return nil
}

// WaitForLastStage drains any provided channels and then blocks on wait(). Any error that's
// returned from the wait function is joined with err and returned. This lets you cancel a
// downstream pipeline stage without preventing upstream stages that may still be active.
func WaitForLastStage[T any](wait func() error, err error, chans ...<-chan T) error {
	wg := sync.WaitGroup{}
	for _, ch := range chans {
		wg.Go(func() {
			for range ch {
			}
		})
	}
	wg.Wait()
	return errors.Join(wait(), err)
}
