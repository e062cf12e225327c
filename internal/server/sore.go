// Package server exposes SORE's HTTP surface: a chi router wired with the
// teacher's middleware stack (request ID, recoverer, CORS, structured
// request logging) fronting the reports, scanner, regime/playbook, source
// health, model-analysis, and generate-SSE endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/cache"
	"github.com/sorelab/sore/internal/normalize"
	"github.com/sorelab/sore/internal/playbook"
	"github.com/sorelab/sore/internal/progress"
	"github.com/sorelab/sore/internal/providers"
	"github.com/sorelab/sore/internal/reports"
	"github.com/sorelab/sore/internal/scanner"
	"github.com/sorelab/sore/internal/universe"
)

// Deps bundles every collaborator a SORE route needs. One Deps per provider
// tag could be supported; the demo topology runs a single market provider
// and a single model analyzer, matching the single-provider demo scope.
type Deps struct {
	Log       zerolog.Logger
	Market    providers.MarketProvider
	Model     providers.ModelAnalyzer
	Scanner   *scanner.Orchestrator
	Steps     []scanner.StepDef
	Reports   *reports.Store
	Universe  *universe.Store
	Cache     *cache.Store
	Generator *progress.Generator
	DevMode   bool
}

// Server is SORE's HTTP entrypoint.
type Server struct {
	router *chi.Mux
	log    zerolog.Logger
	deps   Deps
}

// New builds a Server with routes mounted.
func New(deps Deps) *Server {
	s := &Server{router: chi.NewRouter(), log: deps.Log.With().Str("component", "server").Logger(), deps: deps}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router exposes the underlying chi.Mux for http.ListenAndServe.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.deps.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Generate streams run under their own long safety cutoff
		// (its own long generate-stream cutoff), so they stay out of the blanket request timeout
		// applied to the rest of the surface below.
		r.Get("/generate", s.handleGenerate("default"))
		r.Get("/strategies/{id}/generate", s.handleGenerateByStrategy)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/reports", s.handleListReports("default"))
			r.Get("/strategies/{id}/reports", s.handleListReportsByStrategy)
			r.Get("/strategies/{id}/reports/{name}", s.handleGetReport)

			r.Get("/stock/scanner", s.handleStockScanner)

			r.Post("/decisions/reject", s.handleRejectDecision)
			r.Get("/decisions/{report_file}", s.handleGetDecisions)

			r.Get("/regime", s.handleRegime)
			r.Get("/playbook", s.handlePlaybook)
			r.Get("/health/sources", s.handleSourceHealth)
			r.Post("/model/analyze", s.handleModelAnalyze)

			r.Get("/home", s.handleHome)
		})
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// --- reports (C4) ---

func (s *Server) handleListReports(strategyID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metas, err := s.deps.Reports.ListReports(r.Context(), strategyID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		names := make([]string, 0, len(metas))
		for _, m := range metas {
			names = append(names, m.Name)
		}
		s.writeJSON(w, http.StatusOK, names)
	}
}

func (s *Server) handleListReportsByStrategy(w http.ResponseWriter, r *http.Request) {
	s.handleListReports(chi.URLParam(r, "id"))(w, r)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	strategyID := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	report, err := s.deps.Reports.GetReport(r.Context(), strategyID, name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	health, _ := s.deps.Market.GetSourceHealth(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades":              report.Trades,
		"report_stats":        report.ReportStats,
		"diagnostics":         report.Diagnostics,
		"source_health":       health,
		"debug_stage_counts":  report.ReportStats["scanners_run"],
		"validation_warnings": report.Diagnostics["errors"],
	})
}

// --- generate SSE (C9) ---

func (s *Server) handleGenerate(defaultStrategy string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveGenerate(w, r, defaultStrategy)
	}
}

func (s *Server) handleGenerateByStrategy(w http.ResponseWriter, r *http.Request) {
	s.serveGenerate(w, r, chi.URLParam(r, "id"))
}

func (s *Server) serveGenerate(w http.ResponseWriter, r *http.Request, strategyID string) {
	level := scanner.FilterLevel(r.URL.Query().Get("preset"))
	if level == "" {
		level = scanner.LevelBalanced
	}

	// Bounds a generate stream to the 180s client-side safety cutoff,
	// enforced server-side too so an abandoned connection can't pin a
	// scanner suite open indefinitely.
	ctx, cancel := context.WithTimeout(r.Context(), 180*time.Second)
	defer cancel()

	regimeLanes, enrichedLanes := s.fetchPlaybookLanes(ctx)

	events := s.deps.Generator.GenerateReport(ctx, progress.GenerateParams{
		StrategyID: strategyID,
		Steps:      s.deps.Steps,
		Level:      level,
		Enriched:   enrichedLanes,
		Regime:     regimeLanes,
	})
	progress.WriteStream(w, r, events, s.log)
}

// fetchPlaybookLanes resolves C7's two lane inputs: the regime's own
// lightweight suggestion, and the enriched playbook built from it. Either
// call failing just leaves that LaneSet empty, so a generate run still
// ranks (classifying everything neutral) rather than failing outright.
func (s *Server) fetchPlaybookLanes(ctx context.Context) (regimeLanes, enrichedLanes playbook.LaneSet) {
	rgm, err := s.deps.Market.GetRegime(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("generate: regime fetch failed, ranking without playbook lanes")
		return playbook.LaneSet{}, playbook.LaneSet{}
	}
	regimeLanes = playbook.FromRegimeSuggestion(rgm.Suggested)

	pb, err := s.deps.Market.GetPlaybook(ctx, rgm)
	if err != nil {
		s.log.Warn().Err(err).Msg("generate: playbook fetch failed, falling back to regime suggestion")
		return regimeLanes, playbook.LaneSet{}
	}
	enrichedLanes = playbook.FromPlaybook(pb)
	return regimeLanes, enrichedLanes
}

// --- stock scanner (C6 direct) ---

func (s *Server) handleStockScanner(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		list, err := s.deps.Universe.List(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		symbols = list
	}

	candidates, err := s.deps.Market.FetchStockScanner(r.Context(), symbols)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	opps := make([]normalize.Opportunity, 0, len(candidates))
	for _, c := range candidates {
		opps = append(opps, normalize.Normalize(c, "stock_scanner", normalize.SourceStock))
	}

	health, _ := s.deps.Market.GetSourceHealth(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates":    opps,
		"report_stats":  map[string]interface{}{"count": len(opps)},
		"notes":         []string{},
		"source_health": health,
	})
}

// --- decisions (C4 reject log) ---

type rejectRequest struct {
	TradeKey   string `json:"trade_key"`
	Symbol     string `json:"symbol"`
	Strategy   string `json:"strategy"`
	ReportFile string `json:"report_file"`
	Reason     string `json:"reason"`
}

func (s *Server) handleRejectDecision(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportFile == "" || req.TradeKey == "" {
		s.writeError(w, http.StatusBadRequest, "report_file and trade_key are required")
		return
	}

	if err := s.deps.Reports.PersistReject(r.Context(), req.ReportFile, req.TradeKey, req.Reason); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleGetDecisions(w http.ResponseWriter, r *http.Request) {
	reportFile := chi.URLParam(r, "report_file")
	decisions, err := s.deps.Reports.GetDecisions(r.Context(), reportFile)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

// --- regime & playbook (C1 passthrough + C7) ---

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	rgm, err := s.deps.Market.GetRegime(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	health, _ := s.deps.Market.GetSourceHealth(r.Context())

	components := make(map[string]interface{}, len(rgm.Components))
	for name, c := range rgm.Components {
		components[name] = map[string]interface{}{"score": c.Score, "signals": c.Signals}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"regime_label": rgm.Label,
		"regime_score": rgm.Score,
		"components":   components,
		"suggested_playbook": map[string]interface{}{
			"primary": rgm.Suggested.Primary,
			"avoid":   rgm.Suggested.Avoid,
			"notes":   rgm.Suggested.Notes,
		},
		"source_health": health,
	})
}

func (s *Server) handlePlaybook(w http.ResponseWriter, r *http.Request) {
	rgm, err := s.deps.Market.GetRegime(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	pb, err := s.deps.Market.GetPlaybook(r.Context(), rgm)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"regime": rgm,
		"playbook": map[string]interface{}{
			"primary":   pb.Primary,
			"secondary": pb.Secondary,
			"avoid":     pb.Avoid,
			"notes":     pb.Notes,
		},
	})
}

func (s *Server) handleSourceHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.deps.Market.GetSourceHealth(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{s.deps.Market.Tag(): health})
}

// --- home dashboard snapshot (C8) ---

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	homeOnly := r.URL.Query().Get("home_only") != "false"

	snap, err := s.deps.Cache.RefreshSilent(r.Context(), force, homeOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	errs := make([]map[string]string, 0, len(snap.Errors))
	for _, fe := range snap.Errors {
		errs = append(errs, map[string]string{"field": fe.Field, "message": fe.Message})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":         snap.Data,
		"errors":       errs,
		"partial":      snap.Partial,
		"refreshed_at": snap.RefreshedAt,
	})
}

// --- model analysis (C1 passthrough) ---

type analyzeRequest struct {
	Trade  map[string]interface{} `json:"trade"`
	Source string                 `json:"source"`
}

func (s *Server) handleModelAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	candidate := providers.Candidate{Fields: req.Trade}
	if sym, ok := req.Trade["symbol"].(string); ok {
		candidate.Symbol = sym
	}
	if strat, ok := req.Trade["strategy"].(string); ok {
		candidate.StrategyID = strat
	}

	eval, err := s.deps.Model.AnalyzeTrade(r.Context(), candidate, req.Source)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true,
			"evaluated_trade": map[string]interface{}{
				"model_evaluation": map[string]interface{}{
					"recommendation": "ERROR",
					"confidence":     nil,
					"summary":        err.Error(),
					"risk_level":     "unknown",
					"key_factors":    []string{},
				},
			},
		})
		return
	}

	req.Trade["model_evaluation"] = map[string]interface{}{
		"recommendation": eval.Recommendation,
		"confidence":     eval.Confidence,
		"summary":        eval.Summary,
		"risk_level":     eval.RiskLevel,
		"key_factors":    eval.KeyFactors,
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "evaluated_trade": req.Trade})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
