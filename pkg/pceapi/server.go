package pceapi

import (
	"context"
	"net/http"
	"time"

	"github.com/pcehq/pce/pkg/approval"
	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/epl"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/pipeline"
	"github.com/pcehq/pce/pkg/plugins/assistant"
	"github.com/pcehq/pce/pkg/plugins/rover"
	"github.com/pcehq/pce/pkg/transcript"
)

// PipelineStore is the read surface pceapi drives directly, beyond what
// Pipeline already owns internally.
type PipelineStore interface {
	LoadState(ctx context.Context) (pcetypes.State, error)
	SaveState(ctx context.Context, st pcetypes.State) error
	RecentActions(ctx context.Context, limit int) ([]pcetypes.CompletedAction, error)
	CCIHistory(ctx context.Context, limit int) ([]pcetypes.CCISnapshot, error)
	LatestCCI(ctx context.Context) (pcetypes.CCISnapshot, error)
}

// Deps bundles everything the HTTP surface needs. Pipeline already holds
// most of these; they are re-threaded here so handlers can reach them
// without reaching back into pipeline.Deps.
type Deps struct {
	Pipeline   *pipeline.Pipeline
	Store      PipelineStore
	Gate       *approval.Gate
	CCI        *cci.Engine
	Transcript *transcript.Broadcaster
	Validator  *epl.Validator
	Assistant  *assistant.Storage
	Rover      *rover.Storage

	RateLimitRPS   int
	RateLimitBurst int
}

// Server is the HTTP surface over one Pipeline instance.
type Server struct {
	deps    Deps
	limiter *RateLimiter
	mux     *http.ServeMux
}

// New builds a Server and registers every route.
func New(deps Deps) *Server {
	if deps.RateLimitRPS <= 0 {
		deps.RateLimitRPS = 20
	}
	if deps.RateLimitBurst <= 0 {
		deps.RateLimitBurst = 40
	}
	s := &Server{
		deps:    deps,
		limiter: NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler, wrapping every route with the rate
// limit middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.limiter.Middleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) routes() {
	mux := s.mux

	mux.HandleFunc("POST /events", s.handleIngest)
	mux.HandleFunc("POST /v1/events", s.handleIngest)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /cci", s.handleCCI)
	mux.HandleFunc("GET /cci/history", s.handleCCIHistory)
	mux.HandleFunc("GET /cci/contradictions", s.handleContradictions)

	mux.HandleFunc("GET /os/approvals", s.handleApprovalsList)
	mux.HandleFunc("GET /v1/os/approvals", s.handleApprovalsList)
	mux.HandleFunc("POST /os/approvals/{id}/approve", s.handleApprovalApprove)
	mux.HandleFunc("POST /os/approvals/{id}/reject", s.handleApprovalReject)
	mux.HandleFunc("POST /v1/os/approvals/{id}/override", s.handleApprovalOverride)

	mux.HandleFunc("GET /os/robotics/state", s.handleRoboticsState)
	mux.HandleFunc("GET /v1/os/state", s.handleOSState)

	mux.HandleFunc("GET /v1/os/agents/transcript", s.handleTranscriptSince)
	mux.HandleFunc("GET /v1/stream/os", s.handleStreamSSE)
	mux.HandleFunc("GET /v1/stream/os/ws", s.handleStreamWS)

	mux.HandleFunc("POST /agents/assistant/control/clear_memory", s.handleAssistantClearMemory)
	mux.HandleFunc("POST /agents/rover/control/start", s.handleRoverControl("start"))
	mux.HandleFunc("POST /agents/rover/control/stop", s.handleRoverControl("stop"))
	mux.HandleFunc("POST /agents/rover/control/reset", s.handleRoverControl("reset"))
	mux.HandleFunc("POST /agents/rover/control/reset_stats", s.handleRoverControl("reset_stats"))
	mux.HandleFunc("POST /agents/rover/control/clear_policy", s.handleRoverControl("clear_policy"))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// requestContext returns r's context with a 15s timeout, a pragmatic
// ceiling on any single handler's store/pipeline work.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 15*time.Second)
}
