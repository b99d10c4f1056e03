package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"booq/loader"
	"booq/store"
	"booq/types"
)

// Runner analyses a registered file and returns when the run is over.
type Runner interface {
	Run(ctx context.Context, fileID string) error
}

// Service picks up documents dropped into the inbox directory, registers
// them and runs the analysis on each one in turn.
type Service struct {
	cfg         types.LoaderConfig
	storagePath string
	files       store.FileRegistry
	runner      Runner
	logger      *slog.Logger
	interval    time.Duration

	mu         sync.Mutex
	firstSeen  map[string]time.Time
	processing map[string]bool
}

func New(cfg types.LoaderConfig, storagePath string, files store.FileRegistry, runner Runner) *Service {
	return &Service{
		cfg:         cfg,
		storagePath: storagePath,
		files:       files,
		runner:      runner,
		logger:      slog.Default(),
		interval:    time.Second,
		firstSeen:   make(map[string]time.Time),
		processing:  make(map[string]bool),
	}
}

// Run watches the inbox until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := createDirectories(s.cfg.SourceDir, s.cfg.ArchiveDir, s.cfg.BadDir); err != nil {
		return err
	}

	fileChan := make(chan string, 10)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(fileChan)
		return s.watch(gctx, fileChan)
	})
	g.Go(func() error {
		return s.process(gctx, fileChan)
	})

	err := g.Wait()
	s.logger.Info("inbox service stopped")
	return err
}

func (s *Service) watch(ctx context.Context, fileChan chan<- string) error {
	log.Printf("[WATCH] monitoring folder %s", s.cfg.SourceDir)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		entries, err := os.ReadDir(s.cfg.SourceDir)
		if err != nil {
			log.Printf("[WATCH] error reading source directory: %v", err)
			continue
		}

		current := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			path := filepath.Join(s.cfg.SourceDir, e.Name())
			current[path] = true

			if !s.ready(path) {
				continue
			}
			log.Printf("[WATCH] %s unchanged for %v, queued", path, s.cfg.MonitoringTime)
			select {
			case fileChan <- path:
			case <-ctx.Done():
				return nil
			}
		}

		s.forget(current)
	}
}

// ready reports whether path has been seen long enough ago to be processed.
// A ready path is marked as processing.
func (s *Service) ready(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing[path] {
		return false
	}
	first, ok := s.firstSeen[path]
	if !ok {
		s.firstSeen[path] = time.Now()
		log.Printf("[WATCH] new file detected: %s", path)
		return false
	}
	if time.Since(first) < s.cfg.MonitoringTime {
		return false
	}
	s.processing[path] = true
	return true
}

func (s *Service) forget(current map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path := range s.firstSeen {
		if !current[path] && !s.processing[path] {
			delete(s.firstSeen, path)
		}
	}
}

func (s *Service) done(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, path)
	delete(s.firstSeen, path)
}

func (s *Service) process(ctx context.Context, fileChan <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-fileChan:
			if !ok {
				return nil
			}

			id, err := s.Ingest(ctx, path)
			switch {
			case err == nil, errors.Is(err, types.ErrCancelled):
				// a stopped run stays registered and can be restarted
				if _, err := s.MoveToArchive(path, false); err != nil {
					log.Printf("[ARCHIVE] %v", err)
				}
				s.logger.Info("inbox file processed", "path", path, "file_id", id)
			default:
				s.logger.Error("inbox file failed", "path", path, "error", err)
				if _, err := s.MoveToArchive(path, true); err != nil {
					log.Printf("[ARCHIVE] %v", err)
				}
			}
			s.done(path)
		}
	}
}

// Ingest copies path into storage, registers it and analyses it. It returns
// the new file id.
func (s *Service) Ingest(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	fileType := loader.FileTypeOf(name)
	if fileType == types.FileUnknown {
		return "", fmt.Errorf("%s: unsupported file type: %w", name, types.ErrValidation)
	}

	id := uuid.NewString()
	dest := filepath.Join(s.storagePath, id, name)
	size, err := copyFile(path, dest)
	if err != nil {
		os.RemoveAll(filepath.Dir(dest))
		return "", fmt.Errorf("copy %s: %w", name, err)
	}

	pages, err := loader.PageCount(dest, fileType)
	if err != nil {
		os.RemoveAll(filepath.Dir(dest))
		return "", fmt.Errorf("read %s: %v: %w", name, err, types.ErrValidation)
	}

	info := types.FileInfo{
		ID:          id,
		Name:        name,
		DisplayName: displayName(name),
		FileType:    fileType,
		Path:        dest,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
		TotalPages:  pages,
	}
	if err := s.files.SaveFile(ctx, info); err != nil {
		os.RemoveAll(filepath.Dir(dest))
		return "", err
	}
	log.Printf("[PROCESS] %s registered as %s with %d pages", name, id, pages)

	return id, s.runner.Run(ctx, id)
}

// MoveToArchive moves filePath into a dated folder of the archive, or of the
// bad directory when bad is set. Name clashes get a numeric suffix.
func (s *Service) MoveToArchive(filePath string, bad bool) (string, error) {
	root := s.cfg.ArchiveDir
	if bad {
		root = s.cfg.BadDir
	}
	destDir := filepath.Join(root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	base := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err != nil {
		// rename fails across devices
		if _, err := copyFile(filePath, destPath); err != nil {
			return "", fmt.Errorf("move %s: %w", filePath, err)
		}
		os.Remove(filePath)
	}
	log.Printf("[ARCHIVE] %s moved to %s", filePath, destPath)
	return destPath, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func displayName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ReplaceAll(name, "-", " ")
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
