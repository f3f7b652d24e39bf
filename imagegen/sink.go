package imagegen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"promptbatch/jobqueue"
	"promptbatch/logging"
	"promptbatch/runner"
	"promptbatch/shutdown"
)

// UnbatchedDir holds images of jobs enqueued outside a batch.
const UnbatchedDir = "single"

// FileSink writes the images of completed jobs to
// <dir>/<batch>/<job>.<ext>. Files appear atomically: data goes to a
// ".part" file that is renamed once complete.
type FileSink struct {
	dir       string
	thumbSize int
	logger    *logging.Logger

	mkdirMu sync.Mutex
	made    map[string]bool

	written atomic.Int64
	failed  atomic.Int64
}

var _ runner.Observer = (*FileSink)(nil)

// SinkOption configures a FileSink.
type SinkOption func(*FileSink)

// WithThumbnails also writes <job>.thumb.png scaled to fit size x size.
func WithThumbnails(size int) SinkOption {
	return func(s *FileSink) { s.thumbSize = size }
}

// WithSinkLogger sets the logger.
func WithSinkLogger(l *logging.Logger) SinkOption {
	return func(s *FileSink) {
		if l != nil {
			s.logger = l.Named("sink")
		}
	}
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string, opts ...SinkOption) *FileSink {
	s := &FileSink{
		dir:    dir,
		logger: logging.NewNop(),
		made:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Written returns how many images were saved.
func (s *FileSink) Written() int64 { return s.written.Load() }

// Failed returns how many images could not be saved.
func (s *FileSink) Failed() int64 { return s.failed.Load() }

// OnProgress saves the images of a completed job.
func (s *FileSink) OnProgress(ev runner.ProgressEvent) {
	if ev.Status != jobqueue.StatusCompleted || ev.Result == nil {
		return
	}
	log := s.logger.With(logging.JobFields(ev.JobID, ev.BatchID, 0)...)
	paths, err := s.Save(ev.JobID, ev.BatchID, ev.Result)
	if err != nil {
		log.Error("failed to save images", zap.Error(err))
		return
	}

	var bytes int
	for _, img := range ev.Result.Images {
		bytes += len(img.Data)
	}
	m := logging.GenerationMetrics{
		Backend:  ev.Result.Backend,
		Images:   len(ev.Result.Images),
		Bytes:    bytes,
		Seed:     ev.Result.Seed,
		Duration: ev.Result.Duration,
	}
	if len(ev.Result.Images) > 0 {
		m.Width, m.Height = ev.Result.Images[0].Width, ev.Result.Images[0].Height
	}
	log.Info("images saved", zap.Strings("files", paths), logging.MetricsField(m))
}

// Save writes res's images and returns their paths. Images already
// written stay in place when a later one fails.
func (s *FileSink) Save(jobID int64, batchID string, res *jobqueue.Result) ([]string, error) {
	sub := UnbatchedDir
	if batchID != "" {
		sub = SanitizeFilename(batchID)
	}
	dir := filepath.Join(s.dir, sub)
	if err := s.ensureDir(dir); err != nil {
		return nil, err
	}

	var paths []string
	for i, img := range res.Images {
		base := fmt.Sprintf("%06d", jobID)
		if len(res.Images) > 1 {
			base = fmt.Sprintf("%06d-%d", jobID, i+1)
		}
		path := filepath.Join(dir, base+ExtensionForFormat(img.Format))
		if err := writeAtomic(path, img.Data); err != nil {
			s.failed.Add(1)
			return paths, err
		}
		s.written.Add(1)
		paths = append(paths, path)

		if s.thumbSize > 0 {
			thumb := filepath.Join(dir, base+".thumb.png")
			if err := s.writeThumbnail(thumb, img.Data); err != nil {
				s.logger.Warn("failed to write thumbnail", zap.String("file", thumb), zap.Error(err))
			}
		}
	}
	return paths, nil
}

func (s *FileSink) ensureDir(dir string) error {
	s.mkdirMu.Lock()
	defer s.mkdirMu.Unlock()
	if s.made[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	s.made[dir] = true
	return nil
}

func (s *FileSink) writeThumbnail(path string, data []byte) error {
	img, err := DecodeImage(data)
	if err != nil {
		return err
	}
	encoded, err := EncodePNG(Thumbnail(img, s.thumbSize))
	if err != nil {
		return err
	}
	return writeAtomic(path, encoded)
}

func writeAtomic(path string, data []byte) error {
	part := path + shutdown.PartialSuffix
	if err := os.WriteFile(part, data, 0o644); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to write %s: %w", part, err)
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
