package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"

	"github.com/jmorganca/subtok/api"
	"github.com/jmorganca/subtok/bpe"
	"github.com/jmorganca/subtok/envconfig"
	"github.com/jmorganca/subtok/logutil"
	"github.com/jmorganca/subtok/version"
)

type Server struct{}

func (s *Server) TrainHandler(c *gin.Context) {
	var req api.TrainRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path, err := CheckpointPath(req.Name)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Words) == 0 && req.CorpusFile == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing words to train on"})
		return
	}

	opts, err := trainOptions(req.Options)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch := make(chan any)
	go func() {
		defer close(ch)

		fn := func(p api.TrainProgress) {
			ch <- p
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		if err := trainCheckpoint(ctx, req.Name, path, &req, opts, fn); err != nil {
			ch <- gin.H{"error": err.Error()}
		}
	}()

	if req.Stream != nil && !*req.Stream {
		waitForStream(c, ch)
		return
	}

	streamResponse(c, ch)
}

// trainOptions decodes the loose options map of a train request,
// rejecting keys that name no known option.
func trainOptions(in map[string]any) (api.TrainOptions, error) {
	var opts api.TrainOptions

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &opts,
	})
	if err != nil {
		return opts, err
	}

	if err := decoder.Decode(in); err != nil {
		return opts, err
	}

	if len(md.Unused) > 0 {
		slices.Sort(md.Unused)
		return opts, fmt.Errorf("invalid option provided: %s", strings.Join(md.Unused, ", "))
	}

	return opts, nil
}

func (s *Server) TokenizeHandler(c *gin.Context) {
	var req api.TokenizeRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, ok := tokenizerFor(c, req.Name)
	if !ok {
		return
	}

	window := req.Window
	if window <= 0 {
		window = envconfig.Window
	}

	ids, err := t.Tokenize(c.Request.Context(), req.Lines, bpe.EncodeOptions{
		Window:    window,
		Segmented: req.Segmented,
		Parallel:  envconfig.NumParallel,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.TokenizeResponse{Ids: ids})
}

func (s *Server) DetokenizeHandler(c *gin.Context) {
	var req api.DetokenizeRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Ids) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing ids to detokenize"})
		return
	}

	t, ok := tokenizerFor(c, req.Name)
	if !ok {
		return
	}

	symbols, err := t.Decode(req.Ids)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.DetokenizeResponse{Symbols: symbols})
}

func (s *Server) SegmentHandler(c *gin.Context) {
	var req api.SegmentRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Word == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing word to segment"})
		return
	}

	t, ok := tokenizerFor(c, req.Name)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, api.SegmentResponse{
		Symbols: strings.Fields(t.Segment(req.Word)),
	})
}

func (s *Server) ListHandler(c *gin.Context) {
	checkpoints, err := listCheckpoints()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ListResponse{Checkpoints: checkpoints})
}

func (s *Server) ShowHandler(c *gin.Context) {
	var req api.ShowRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := checkpointInfo(req.Name)
	if err != nil {
		abortWithLoadError(c, req.Name, err)
		return
	}

	t, ok := tokenizerFor(c, req.Name)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, api.ShowResponse{
		Name:       req.Name,
		Marker:     t.Marker(),
		VocabSize:  info.VocabSize,
		Words:      t.Corpus().Len(),
		Merges:     recentMerges(t, 10),
		Size:       info.Size,
		ModifiedAt: info.ModifiedAt,
	})
}

// recentMerges returns the flattened forms of the last n merges, newest
// last.
func recentMerges(t *bpe.Tokenizer, n int) []string {
	pairs := t.Vocabulary().Pairs()

	var merges []string
	for _, pair := range pairs {
		if pair.Right != "" {
			merges = append(merges, pair.String())
		}
	}

	if len(merges) > n {
		merges = merges[len(merges)-n:]
	}

	return merges
}

func (s *Server) DeleteHandler(c *gin.Context) {
	var req api.DeleteRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := deleteCheckpoint(req.Name); err != nil {
		abortWithLoadError(c, req.Name, err)
		return
	}
}

// tokenizerFor loads the named checkpoint, writing the error response
// itself when loading fails.
func tokenizerFor(c *gin.Context, name string) (*bpe.Tokenizer, bool) {
	t, err := loadTokenizer(name)
	if err != nil {
		abortWithLoadError(c, name, err)
		return nil, false
	}

	return t, true
}

func abortWithLoadError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, os.ErrNotExist):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("checkpoint '%s' not found", name)})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowOrigins = envconfig.AllowOrigins

	r := gin.Default()
	r.Use(cors.New(config))

	r.POST("/api/train", s.TrainHandler)
	r.POST("/api/tokenize", s.TokenizeHandler)
	r.POST("/api/detokenize", s.DetokenizeHandler)
	r.POST("/api/segment", s.SegmentHandler)
	r.POST("/api/show", s.ShowHandler)
	r.DELETE("/api/delete", s.DeleteHandler)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r.Handle(method, "/", func(c *gin.Context) {
			c.String(http.StatusOK, "Subtok is running")
		})
		r.Handle(method, "/api/tags", s.ListHandler)
		r.Handle(method, "/api/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"version": version.Version})
		})
	}

	return r
}

func Serve(ln net.Listener) error {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(logutil.NewLogger(os.Stderr, level))
	slog.Info("server config", "env", envconfig.Values())

	if err := os.MkdirAll(envconfig.CheckpointsDir(), 0o755); err != nil {
		return err
	}

	var s Server
	r := s.GenerateRoutes()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler: r,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		srvr.Close()
		os.Exit(0)
	}()

	return srvr.Serve(ln)
}

func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}

		// Delineate chunks with new-line separator
		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}

		return true
	})
}

func waitForStream(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/json")
	var latest api.TrainProgress
	for resp := range ch {
		switch r := resp.(type) {
		case api.TrainProgress:
			latest = r
		case gin.H:
			if errorMsg, ok := r["error"].(string); ok {
				c.JSON(http.StatusInternalServerError, gin.H{"error": errorMsg})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected error format in progress response"})
			}
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected progress response"})
			return
		}
	}

	if latest.Status == "success" {
		c.JSON(http.StatusOK, latest)
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected end of progress response"})
}
