package editor

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masterpost/internal/domain"
	"masterpost/internal/pipeline"
)

const (
	// historyLimit caps undo depth per session; beyond it the oldest state is
	// dropped and the cursor shifts with it.
	historyLimit = 20

	previewMaxDim = 800
)

// Session holds one manual-edit working set: the untouched original, the
// current buffer and a bounded undo history. All pixel access goes through
// the session mutex.
type Session struct {
	ID        string
	JobID     string
	ImageName string

	mu       sync.Mutex
	original *image.NRGBA
	current  *image.NRGBA
	history  []*image.NRGBA
	index    int

	createdAt time.Time
	touchedAt time.Time
}

// Info is the externally visible session state.
type Info struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	ImageName string `json:"image_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CanUndo   bool   `json:"can_undo"`
	CanRedo   bool   `json:"can_redo"`
	History   int    `json:"history_size"`
}

// Manager owns all live editor sessions and their on-disk previews. Sessions
// that sit idle past the TTL are swept together with their preview files.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	previewDir string
	ttl        time.Duration
	logger     zerolog.Logger
}

// NewManager creates a session manager writing previews under previewDir.
func NewManager(previewDir string, ttl time.Duration, logger zerolog.Logger) (*Manager, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := os.MkdirAll(previewDir, 0o755); err != nil {
		return nil, fmt.Errorf("editor: ensure preview dir: %w", err)
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		previewDir: previewDir,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

// Open loads a processed image into a new session and renders its first
// preview. The decoded raster is duplicated so the original survives every
// destructive edit.
func (m *Manager) Open(jobID, imagePath string) (Info, string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, "", fmt.Errorf("%w: image %s", domain.ErrNotFound, filepath.Base(imagePath))
		}
		return Info{}, "", fmt.Errorf("editor: read image: %w", err)
	}
	img, err := pipeline.DecodeImage(data)
	if err != nil {
		return Info{}, "", err
	}

	s := &Session{
		ID:        uuid.NewString(),
		JobID:     jobID,
		ImageName: filepath.Base(imagePath),
		original:  cloneImage(img),
		current:   img,
		history:   []*image.NRGBA{cloneImage(img)},
		index:     0,
		createdAt: time.Now(),
		touchedAt: time.Now(),
	}

	preview, err := m.writePreview(s)
	if err != nil {
		return Info{}, "", err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.ID).Str("job_id", jobID).Str("image", s.ImageName).Msg("editor session opened")
	return s.info(), preview, nil
}

// Brush applies one stroke to the session buffer. Erase zeroes alpha under
// the stroke; restore copies the original pixels back in. Each stroke pushes
// one history entry.
func (m *Manager) Brush(sessionID string, action BrushAction, stroke []Point, brushSize int) (Info, string, error) {
	if action != ActionErase && action != ActionRestore {
		return Info{}, "", fmt.Errorf("%w: unknown brush action %q", domain.ErrValidation, action)
	}
	if len(stroke) == 0 {
		return Info{}, "", fmt.Errorf("%w: stroke needs at least one point", domain.ErrValidation)
	}
	if brushSize <= 0 {
		return Info{}, "", fmt.Errorf("%w: brush size must be positive", domain.ErrValidation)
	}

	s, err := m.lookup(sessionID)
	if err != nil {
		return Info{}, "", err
	}

	s.mu.Lock()
	w := s.current.Bounds().Dx()
	h := s.current.Bounds().Dy()
	mask := rasterizeStroke(w, h, stroke, brushSize)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			di := y*s.current.Stride + x*4
			if action == ActionErase {
				s.current.Pix[di+3] = 0
			} else {
				copy(s.current.Pix[di:di+4], s.original.Pix[y*s.original.Stride+x*4:y*s.original.Stride+x*4+4])
			}
		}
	}
	s.pushHistory()
	s.touchedAt = time.Now()
	s.mu.Unlock()

	preview, err := m.writePreview(s)
	if err != nil {
		return Info{}, "", err
	}
	return s.info(), preview, nil
}

// Undo steps the session back one state. At the oldest state it is a no-op.
func (m *Manager) Undo(sessionID string) (Info, string, error) {
	return m.step(sessionID, -1)
}

// Redo steps the session forward one state. At the newest state it is a
// no-op.
func (m *Manager) Redo(sessionID string) (Info, string, error) {
	return m.step(sessionID, +1)
}

func (m *Manager) step(sessionID string, dir int) (Info, string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Info{}, "", err
	}

	s.mu.Lock()
	next := s.index + dir
	if next >= 0 && next < len(s.history) {
		s.index = next
		s.current = cloneImage(s.history[s.index])
	}
	s.touchedAt = time.Now()
	s.mu.Unlock()

	preview, err := m.writePreview(s)
	if err != nil {
		return Info{}, "", err
	}
	return s.info(), preview, nil
}

// Reset discards all edits and returns the session to the original image.
// The reset itself is undoable.
func (m *Manager) Reset(sessionID string) (Info, string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Info{}, "", err
	}

	s.mu.Lock()
	s.current = cloneImage(s.original)
	s.pushHistory()
	s.touchedAt = time.Now()
	s.mu.Unlock()

	preview, err := m.writePreview(s)
	if err != nil {
		return Info{}, "", err
	}
	return s.info(), preview, nil
}

// Save writes the current buffer as a PNG next to the job's other outputs
// and returns the written path. The session stays open.
func (m *Manager) Save(sessionID, outDir string) (string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	snapshot := cloneImage(s.current)
	s.touchedAt = time.Now()
	name := s.ImageName
	s.mu.Unlock()

	base := name[:len(name)-len(filepath.Ext(name))]
	out := filepath.Join(outDir, fmt.Sprintf("%s_edited.png", base))
	data, err := pipeline.EncodePNG(snapshot)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("editor: write save: %w", err)
	}
	m.logger.Info().Str("session_id", sessionID).Str("path", out).Msg("editor session saved")
	return out, nil
}

// Close removes the session and its preview file.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: editor session %s", domain.ErrNotFound, sessionID)
	}
	m.removePreview(s.ID)
	m.logger.Info().Str("session_id", sessionID).Msg("editor session closed")
	return nil
}

// Get returns the session's current state.
func (m *Manager) Get(sessionID string) (Info, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// PreviewPath returns where a session's preview lives on disk.
func (m *Manager) PreviewPath(sessionID string) string {
	return filepath.Join(m.previewDir, "preview_"+sessionID+".webp")
}

// SweepExpired drops every session idle longer than the TTL and deletes its
// preview. Returns the number of sessions removed.
func (m *Manager) SweepExpired() int {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.touchedAt.Before(cutoff)
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.removePreview(s.ID)
		m.logger.Info().Str("session_id", s.ID).Msg("editor session expired")
	}
	return len(expired)
}

// RunSweeper sweeps idle sessions on the given interval until the context
// ends.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(); n > 0 {
				m.logger.Info().Int("count", n).Msg("swept idle editor sessions")
			}
		}
	}
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: editor session %s", domain.ErrNotFound, sessionID)
	}
	return s, nil
}

func (m *Manager) writePreview(s *Session) (string, error) {
	s.mu.Lock()
	snapshot := cloneImage(s.current)
	s.mu.Unlock()

	small := pipeline.Downscale(snapshot, previewMaxDim, previewMaxDim)
	data, err := pipeline.EncodeWebP(small, 0)
	if err != nil {
		return "", err
	}
	path := m.PreviewPath(s.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("editor: write preview: %w", err)
	}
	return path, nil
}

func (m *Manager) removePreview(sessionID string) {
	if err := os.Remove(m.PreviewPath(sessionID)); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("preview cleanup failed")
	}
}

// pushHistory records the current buffer after an edit, discarding any redo
// tail. Callers hold s.mu.
func (s *Session) pushHistory() {
	s.history = append(s.history[:s.index+1], cloneImage(s.current))
	s.index++
	if len(s.history) > historyLimit {
		drop := len(s.history) - historyLimit
		s.history = append([]*image.NRGBA(nil), s.history[drop:]...)
		s.index -= drop
		if s.index < 0 {
			s.index = 0
		}
	}
}

// info snapshots the visible state. Takes s.mu itself.
func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		SessionID: s.ID,
		JobID:     s.JobID,
		ImageName: s.ImageName,
		Width:     s.current.Bounds().Dx(),
		Height:    s.current.Bounds().Dy(),
		CanUndo:   s.index > 0,
		CanRedo:   s.index < len(s.history)-1,
		History:   len(s.history),
	}
}

func cloneImage(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
