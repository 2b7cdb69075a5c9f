// Package stubserver implements an in-memory mock of the remote
// transcription service: the four HTTP endpoints plus the job-scoped
// WebSocket, with a scripted progress ramp. It backs the `stub` command for
// offline development and doubles as the integration test server.
package stubserver

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1lker/turkish-transcribe/internal/models"
)

var validModelSizes = map[string]bool{
	"tiny": true, "base": true, "small": true,
	"medium": true, "large": true, "large-v3": true,
}

// Options tunes the scripted job lifecycle
type Options struct {
	StepDelay    time.Duration // time between progress steps
	StepProgress float64       // progress added per step
}

type storedFile struct {
	name string
	size int64
}

type task struct {
	id       string
	fileName string
	opts     models.TranscribeOptions
	status   string
	progress float64
	stage    string
	errMsg   string
	result   *models.JobResult
	started  time.Time
}

// Server is a self-contained fake transcription backend
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	files map[string]storedFile
	tasks map[string]*task
}

// New creates a stub server with the given pacing
func New(opts Options) *Server {
	if opts.StepDelay <= 0 {
		opts.StepDelay = 500 * time.Millisecond
	}
	if opts.StepProgress <= 0 {
		opts.StepProgress = 20
	}

	return &Server{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		files:    make(map[string]storedFile),
		tasks:    make(map[string]*task),
	}
}

// Handler builds the gin router for the stub API
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/upload", s.handleUpload)
	router.POST("/transcribe/:fileID", s.handleSubmit)
	router.GET("/task/:taskID", s.handleStatus)
	router.GET("/task/:taskID/download/:format", s.handleDownload)
	router.GET("/ws/:taskID", s.handlePush)

	return router
}

func (s *Server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing file field"})
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable file payload"})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.files[id] = storedFile{name: header.Filename, size: size}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"file_id":  id,
		"filename": header.Filename,
		"size":     size,
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	fileID := c.Param("fileID")

	var opts models.TranscribeOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "malformed options payload"})
		return
	}
	if opts.ModelSize != "" && !validModelSizes[opts.ModelSize] {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fmt.Sprintf("unknown model size %q", opts.ModelSize)})
		return
	}
	if opts.Temperature < 0 || opts.Temperature > 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "temperature must be within [0, 1]"})
		return
	}

	s.mu.Lock()
	file, ok := s.files[fileID]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"detail": "file not found"})
		return
	}

	t := &task{
		id:       uuid.NewString(),
		fileName: file.name,
		opts:     opts,
		status:   "processing",
		stage:    "loading model",
		started:  time.Now(),
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	go s.runTask(t.id)

	c.JSON(http.StatusOK, gin.H{"task_id": t.id, "status": t.status})
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot, ok := s.snapshot(c.Param("taskID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "task not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleDownload(c *gin.Context) {
	format := c.Param("format")

	s.mu.Lock()
	t, ok := s.tasks[c.Param("taskID")]
	var result *models.JobResult
	if ok {
		result = t.result
	}
	s.mu.Unlock()

	if !ok || result == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "task not completed"})
		return
	}

	switch format {
	case "txt":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Text))
	case "srt":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(renderSRT(result)))
	case "json":
		c.JSON(http.StatusOK, result)
	default:
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("unknown format %q", format)})
	}
}

// handlePush streams progress frames over the job-scoped WebSocket until the
// task reaches a terminal state.
func (s *Server) handlePush(c *gin.Context) {
	taskID := c.Param("taskID")
	if _, ok := s.snapshot(taskID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "task not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.opts.StepDelay / 2)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		t, ok := s.tasks[taskID]
		if !ok {
			s.mu.Unlock()
			return
		}
		status, progress, stage := t.status, t.progress, t.stage
		result, errMsg := t.result, t.errMsg
		s.mu.Unlock()

		switch status {
		case "completed":
			_ = conn.WriteJSON(gin.H{"type": "result", "data": result})
			return
		case "failed":
			_ = conn.WriteJSON(gin.H{"type": "error", "data": gin.H{"error": errMsg}})
			return
		default:
			frame := gin.H{"type": "progress", "data": gin.H{"progress": progress, "stage": stage}}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

// runTask advances the scripted progress ramp until completion
func (s *Server) runTask(taskID string) {
	for {
		time.Sleep(s.opts.StepDelay)

		s.mu.Lock()
		t, ok := s.tasks[taskID]
		if !ok {
			s.mu.Unlock()
			return
		}

		t.progress += s.opts.StepProgress
		switch {
		case t.progress >= 100:
			t.progress = 100
			t.status = "completed"
			t.stage = "done"
			t.result = cannedResult(t)
			s.mu.Unlock()
			return
		case t.progress >= 50:
			t.stage = "transcribing"
		default:
			t.stage = "preprocessing"
		}
		s.mu.Unlock()
	}
}

func (s *Server) snapshot(taskID string) (gin.H, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}

	snapshot := gin.H{
		"task_id":  t.id,
		"status":   t.status,
		"progress": t.progress,
		"stage":    t.stage,
	}
	if t.errMsg != "" {
		snapshot["error"] = t.errMsg
	}
	if t.result != nil {
		snapshot["result"] = t.result
	}
	return snapshot, true
}

func cannedResult(t *task) *models.JobResult {
	text := fmt.Sprintf("Stub transcript for %s.", t.fileName)
	model := t.opts.ModelSize
	if model == "" {
		model = "base"
	}

	return &models.JobResult{
		Text: text,
		Segments: []models.Segment{
			{ID: 0, Start: 0, End: 2.4, Text: text, Confidence: 0.92},
		},
		Duration:       2.4,
		ProcessingTime: time.Since(t.started).Seconds(),
		Model:          model,
		Language:       t.opts.Language,
		WordCount:      len(strings.Fields(text)),
		CharCount:      len(text),
		CreatedAt:      t.started,
		CompletedAt:    time.Now(),
	}
}

func renderSRT(result *models.JobResult) string {
	var b strings.Builder
	for i, seg := range result.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(seg.Start), srtTime(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func srtTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}
