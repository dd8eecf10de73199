package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/japaniel/codeclass/pkg/labels"
	"github.com/japaniel/codeclass/pkg/logging"
	"github.com/japaniel/codeclass/pkg/metrics"
	"github.com/japaniel/codeclass/pkg/segment"
)

// ErrUnknownSplit is returned when a declared split directory is missing.
var ErrUnknownSplit = errors.New("corpus: split directory not found")

// Scanner reads every file of a dataset split whose extension belongs to a
// configured language and segments it into labelled documents.
type Scanner struct {
	Labels      *labels.Map
	ChunkLength int
	// Filter is applied to every raw chunk; see segment.Segment.
	Filter segment.Filter
	// Workers is the number of files read and segmented concurrently.
	Workers int
	// Strict turns unreadable files into a scan error instead of a skip.
	Strict bool
	// Logger is used for progress and skip messages. nil means no logging.
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	// PoolFactory allows tests to inject custom pool implementations.
	PoolFactory func(workers, queue int) Pool
}

// NewScanner creates a Scanner with the default chunk length and worker count.
func NewScanner(m *labels.Map, filter segment.Filter) *Scanner {
	return &Scanner{
		Labels:      m,
		ChunkLength: segment.DefaultChunkLength,
		Filter:      filter,
		Workers:     4,
	}
}

type fileJob struct {
	path     string
	language string
	label    int
}

type fileResult struct {
	chunks  []segment.Chunk
	skipped bool
	err     error
}

// Scan processes splits in order. Within a split, languages follow label
// order and files follow lexical path order, so the output is deterministic
// for a fixed directory layout. All files of a split are finished before
// the next split starts.
func (s *Scanner) Scan(ctx context.Context, root string, splits []string) (*Corpus, error) {
	if s.ChunkLength <= 0 {
		return nil, segment.ErrInvalidChunkLength
	}
	if s.Logger == nil {
		s.Logger = logging.Discard()
	}
	c := &Corpus{}
	for _, split := range splits {
		dir := filepath.Join(root, split)
		jobs, err := s.collect(dir)
		if err != nil {
			return nil, err
		}
		results, err := s.run(ctx, jobs)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", split, err)
		}
		perLang := make(map[string]int)
		for i, res := range results {
			if res.err != nil {
				return nil, res.err
			}
			if res.skipped {
				s.Metrics.FileSkipped()
				continue
			}
			c.Append(res.chunks...)
			perLang[jobs[i].language] += len(res.chunks)
		}
		for _, lang := range s.Labels.Languages() {
			if n := perLang[lang]; n > 0 {
				s.Metrics.AddChunks(split, lang, n)
			}
		}
		s.log().WithFields(logrus.Fields{
			"split":  split,
			"files":  len(jobs),
			"chunks": c.Len(),
		}).Info("split scanned")
	}
	return c, nil
}

// collect lists the files of dir grouped by language in label order.
func (s *Scanner) collect(dir string) ([]fileJob, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSplit, dir)
	}
	byExt := make(map[string][]string)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if s.Strict {
				return err
			}
			s.log().WithError(err).WithField("path", path).Warn("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		byExt[ext] = append(byExt[ext], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	var jobs []fileJob
	for _, e := range s.Labels.Entries() {
		for _, p := range byExt[e.Extension] {
			jobs = append(jobs, fileJob{path: p, language: e.Language, label: e.Index})
		}
	}
	return jobs, nil
}

// run segments every job on the worker pool. Each job owns one slot of the
// result slice, which keeps results in submission order.
func (s *Scanner) run(ctx context.Context, jobs []fileJob) ([]fileResult, error) {
	results := make([]fileResult, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp Pool
	if s.PoolFactory != nil {
		wp = s.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	var submitErr error
	for i := range jobs {
		idx := i
		err := wp.SubmitCtx(ctx, func(ctx context.Context) error {
			results[idx] = s.segmentFile(jobs[idx])
			return results[idx].err
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	if submitErr != nil {
		cancel()
	}
	// Close waits for the workers; after it returns every job has either
	// run or been abandoned because ctx was canceled.
	wp.Close()
	if submitErr != nil {
		return nil, submitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scanner) segmentFile(job fileJob) fileResult {
	content, err := readFile(job.path)
	if err != nil {
		if s.Strict {
			return fileResult{err: fmt.Errorf("read %s: %w", job.path, err)}
		}
		s.log().WithError(err).WithField("path", job.path).Warn("skipping unreadable file")
		return fileResult{skipped: true}
	}
	chunks, err := segment.Segment(content, job.label, s.ChunkLength, s.Filter)
	if err != nil {
		return fileResult{err: fmt.Errorf("segment %s: %w", job.path, err)}
	}
	s.log().WithFields(logrus.Fields{
		"path":     job.path,
		"language": job.language,
		"chunks":   len(chunks),
	}).Debug("file segmented")
	return fileResult{chunks: chunks}
}

func readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Scanner) log() logrus.FieldLogger { return s.Logger }
