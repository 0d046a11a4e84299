// Package api provides the HTTP introspection and transport-control
// surface for a running engine: pattern listing/detail, transport
// (start/stop), mute/queue, and the bulk edit operations, over Gin with
// Swagger docs.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/loopforge/engine/internal/arena"
	"github.com/loopforge/engine/internal/engine"
	"github.com/loopforge/engine/internal/lfo"
	"github.com/loopforge/engine/internal/midi/wire"
	"github.com/loopforge/engine/internal/pattern"
)

// @title loopforge engine API
// @version 1.0
// @description Introspection and transport control for a running loopforge engine
// @host localhost:8080
// @BasePath /api/v1

// Server wraps an *engine.Engine with the Gin router serving it.
type Server struct {
	eng    *engine.Engine
	router *gin.Engine
}

// NewServer builds a Server driving eng.
func NewServer(eng *engine.Engine) *Server {
	r := gin.Default()
	r.Use(corsMiddleware())

	s := &Server{eng: eng, router: r}

	r.GET("/health", s.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/transport", s.getTransport)
		v1.POST("/transport/start", s.postStart)
		v1.POST("/transport/stop", s.postStop)
		v1.GET("/ports", s.listPorts)
		v1.GET("/patterns", s.listPatterns)
		v1.POST("/patterns", s.createPattern)
		v1.GET("/patterns/:handle", s.getPattern)
		v1.POST("/patterns/:handle/mute", s.postMute)
		v1.POST("/patterns/:handle/queue-on", s.postQueueOn)
		v1.POST("/patterns/:handle/queue-off", s.postQueueOff)
		v1.POST("/patterns/:handle/transpose", s.postTranspose)
		v1.POST("/patterns/:handle/reverse", s.postReverse)
		v1.POST("/patterns/:handle/randomize", s.postRandomize)
		v1.POST("/patterns/:handle/humanize", s.postHumanize)
		v1.POST("/patterns/:handle/lfo", s.postLFO)
		v1.POST("/patterns/:handle/undo", s.postUndo)
		v1.POST("/patterns/:handle/redo", s.postRedo)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return s
}

// Run starts the HTTP server on port.
func (s *Server) Run(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "loopforge-engine"})
}

// getTransport godoc
// @Summary Current transport state
// @Tags transport
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/transport [get]
func (s *Server) getTransport(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": s.eng.Running(),
		"tick":    s.eng.CurrentTick(),
		"ppqn":    s.eng.PPQN(),
		"bpm":     s.eng.BPMAt(s.eng.CurrentTick()),
	})
}

// postStart godoc
// @Summary Start or continue playback
// @Tags transport
// @Produce json
// @Param start_tick query int false "tick to resume from (0 = fresh start)"
// @Success 200 {object} map[string]any
// @Router /api/v1/transport/start [post]
func (s *Server) postStart(c *gin.Context) {
	startTick, _ := strconv.ParseInt(c.DefaultQuery("start_tick", "0"), 10, 64)
	s.eng.Start(startTick)
	c.JSON(http.StatusOK, gin.H{"running": true, "tick": startTick})
}

// postStop godoc
// @Summary Stop playback
// @Tags transport
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/transport/stop [post]
func (s *Server) postStop(c *gin.Context) {
	s.eng.Stop()
	c.JSON(http.StatusOK, gin.H{"stopping": true})
}

// listPorts godoc
// @Summary List input and output ports
// @Tags ports
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/ports [get]
func (s *Server) listPorts(c *gin.Context) {
	b := s.eng.Bus()
	outs := make([]gin.H, 0, b.PortCount(false))
	for i := 0; i < b.PortCount(false); i++ {
		name, _ := b.PortName(i, false)
		outs = append(outs, gin.H{"index": i, "name": name})
	}
	ins := make([]gin.H, 0, b.PortCount(true))
	for i := 0; i < b.PortCount(true); i++ {
		name, _ := b.PortName(i, true)
		ins = append(ins, gin.H{"index": i, "name": name})
	}
	c.JSON(http.StatusOK, gin.H{"outputs": outs, "inputs": ins, "errors": s.eng.Errors()})
}

// listPatterns godoc
// @Summary List every pattern handle and its summary
// @Tags patterns
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/patterns [get]
func (s *Server) listPatterns(c *gin.Context) {
	handles := s.eng.Patterns()
	out := make([]gin.H, 0, len(handles))
	for _, h := range handles {
		sum, err := s.eng.PatternSummary(h)
		if err != nil {
			continue
		}
		out = append(out, summaryJSON(sum))
	}
	c.JSON(http.StatusOK, gin.H{"patterns": out})
}

type createPatternRequest struct {
	Name        string `json:"name"`
	Channel     uint8  `json:"channel"`
	Bus         int    `json:"bus"`
	BeatsPerBar int    `json:"beats_per_bar"`
	BeatWidth   int    `json:"beat_width"`
	Measures    int    `json:"measures"`
}

// createPattern godoc
// @Summary Create a new pattern
// @Tags patterns
// @Accept json
// @Produce json
// @Param body body createPatternRequest true "pattern parameters"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/patterns [post]
func (s *Server) createPattern(c *gin.Context) {
	var req createPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h, err := s.eng.NewPattern(patternConfigFrom(req))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, _ := s.eng.PatternSummary(h)
	c.JSON(http.StatusCreated, summaryJSON(sum))
}

// getPattern godoc
// @Summary Fetch one pattern's summary
// @Tags patterns
// @Produce json
// @Param handle path int true "pattern handle"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/v1/patterns/{handle} [get]
func (s *Server) getPattern(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	sum, err := s.eng.PatternSummary(h)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaryJSON(sum))
}

func (s *Server) postMute(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	var body struct {
		Muted bool `json:"muted"`
	}
	_ = c.ShouldBindJSON(&body)
	if err := s.eng.SetMute(h, body.Muted); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": body.Muted})
}

func (s *Server) postQueueOn(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	if err := s.eng.QueueOn(h); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": "on"})
}

func (s *Server) postQueueOff(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	if err := s.eng.QueueOff(h); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": "off"})
}

func (s *Server) postTranspose(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	var body struct {
		Semitones int `json:"semitones"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.Transpose(h, body.Semitones); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transposed": body.Semitones})
}

func (s *Server) postReverse(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	if err := s.eng.Reverse(h); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reversed": true})
}

func (s *Server) postRandomize(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	var body struct {
		Range int `json:"range"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.Randomize(h, body.Range); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"randomized": body.Range})
}

func (s *Server) postHumanize(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	var body struct {
		TimingSteps   int  `json:"timing_steps"`
		VelocitySteps int  `json:"velocity_steps"`
		NotesOnly     bool `json:"notes_only"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile := pattern.PackHumanizeProfile(body.TimingSteps, body.VelocitySteps, body.NotesOnly)
	if err := s.eng.Humanize(h, profile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"humanized": true})
}

type lfoRequest struct {
	Status     string  `json:"status"` // "cc", "note-on", "note-off", "poly-at", "chan-at", "pitch", "program"
	Controller uint8   `json:"controller"`
	Value      float64 `json:"value"`
	Range      float64 `json:"range"`
	Speed      float64 `json:"speed"`
	Phase      float64 `json:"phase"`
	Wave       string  `json:"wave"` // "none", "sine", "saw", "rsaw", "triangle"
}

func statusKindFromString(s string) (wire.StatusKind, bool) {
	switch s {
	case "cc":
		return wire.CC, true
	case "note-on":
		return wire.NoteOn, true
	case "note-off":
		return wire.NoteOff, true
	case "poly-at":
		return wire.PolyAT, true
	case "chan-at":
		return wire.ChanAT, true
	case "pitch":
		return wire.Pitch, true
	case "program":
		return wire.Program, true
	default:
		return 0, false
	}
}

func waveFromString(s string) (lfo.Wave, bool) {
	switch s {
	case "", "none":
		return lfo.WaveNone, true
	case "sine":
		return lfo.WaveSine, true
	case "saw":
		return lfo.WaveSawtooth, true
	case "rsaw":
		return lfo.WaveReverseSawtooth, true
	case "triangle":
		return lfo.WaveTriangle, true
	default:
		return 0, false
	}
}

func (s *Server) postLFO(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	var req lfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, ok := statusKindFromString(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + req.Status})
		return
	}
	wave, ok := waveFromString(req.Wave)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown wave " + req.Wave})
		return
	}
	params := lfo.Params{
		Status:     status,
		Controller: req.Controller,
		Value:      req.Value,
		Range:      req.Range,
		Speed:      req.Speed,
		Phase:      req.Phase,
		Wave:       wave,
	}
	if err := s.eng.ApplyLFO(h, params); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": true})
}

func (s *Server) postUndo(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	done, err := s.eng.Undo(h)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"undone": done})
}

func (s *Server) postRedo(c *gin.Context) {
	h, ok := parseHandle(c)
	if !ok {
		return
	}
	done, err := s.eng.Redo(h)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"redone": done})
}

func parseHandle(c *gin.Context) (arena.Handle, bool) {
	raw, err := strconv.ParseUint(c.Param("handle"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pattern handle"})
		return 0, false
	}
	return arena.Handle(raw), true
}

func patternConfigFrom(req createPatternRequest) pattern.Config {
	return pattern.Config{
		Name:        req.Name,
		Channel:     req.Channel,
		Bus:         req.Bus,
		BeatsPerBar: req.BeatsPerBar,
		BeatWidth:   req.BeatWidth,
		Measures:    req.Measures,
	}
}

func summaryJSON(sum engine.Summary) gin.H {
	return gin.H{
		"handle":  sum.Handle,
		"name":    sum.Name,
		"channel": sum.Channel,
		"bus":     sum.Bus,
		"length":  sum.Length,
		"state":   engine.StateName(sum.State),
	}
}
