package page

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"
	kithttputil "github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/visitor-log/internal/visitorlog"
	"github.com/rudderlabs/visitor-log/jsonrs"
	"github.com/rudderlabs/visitor-log/middleware"
)

//go:embed templates/index.html.tmpl
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html.tmpl"))

type visitRecorder interface {
	Visit(ip string)
}

type indexData struct {
	TickerID   string
	InputID    string
	VisitorsID string
	Ticker     string
	Input      string
	Entries    []string
	Separator  string
}

type keyPressRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type tickerResponse struct {
	Ticker string `json:"ticker"`
	Input  string `json:"input"`
}

type visitorsResponse struct {
	Rendered string   `json:"rendered"`
	Entries  []string `json:"entries"`
}

// Server serves the page. Every load of the page is recorded as a visit.
type Server struct {
	page   *Page
	visits visitRecorder
	log    logger.Logger
	stats  stats.Stats

	config struct {
		port                    int
		maxConcurrentRequests   int
		readHeaderTimeout       time.Duration
		gracefulShutdownTimeout time.Duration
	}
}

func NewServer(conf *config.Config, log logger.Logger, statsFactory stats.Stats, page *Page, visits visitRecorder) *Server {
	s := &Server{
		page:   page,
		visits: visits,
		log:    log.Child("page"),
		stats:  statsFactory,
	}
	s.config.port = conf.GetIntVar(8080, 1, "Http.port")
	s.config.maxConcurrentRequests = conf.GetIntVar(0, 1, "Http.maxConcurrentRequests")
	s.config.readHeaderTimeout = conf.GetDurationVar(3, time.Second, "Http.readHeaderTimeout")
	s.config.gracefulShutdownTimeout = conf.GetDurationVar(15, time.Second, "GracefulShutdownTimeout")
	return s
}

// Handler returns the page routes. Request stats are reported until ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	srvMux := chi.NewRouter()
	srvMux.Use(
		middleware.LimitConcurrentRequests(s.config.maxConcurrentRequests),
		middleware.StatMiddleware(ctx, s.stats, "page"),
	)
	srvMux.Get("/", s.indexHandler)
	srvMux.Get("/visitors", s.visitorsHandler)
	srvMux.Post("/ticker/keypress", s.keyPressHandler)
	srvMux.Get("/health", s.healthHandler)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowCredentials: true,
		AllowedHeaders:   []string{"*"},
		MaxAge:           900, // 15 mins
	})
	return c.Handler(srvMux)
}

// Start blocks serving the page until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: s.config.readHeaderTimeout,
	}
	s.log.Infon("Starting page server", logger.NewIntField("port", int64(s.config.port)))

	if err := kithttputil.ListenAndServe(ctx, srv, s.config.gracefulShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving page: %w", err)
	}
	return nil
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.visits.Visit(clientIP(r))

	data := indexData{
		TickerID:   TickerID,
		InputID:    InputID,
		VisitorsID: VisitorsID,
		Ticker:     s.page.Ticker.Display().Text(),
		Input:      s.page.Ticker.Input().Text(),
		Entries:    s.page.Visitors.Entries(),
		Separator:  visitorlog.Separator,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Errorn("Error rendering page", obskit.Error(err))
	}
}

func (s *Server) visitorsHandler(w http.ResponseWriter, _ *http.Request) {
	entries := s.page.Visitors.Entries()
	s.writeJSON(w, http.StatusOK, visitorsResponse{
		Rendered: strings.Join(entries, visitorlog.Separator),
		Entries:  lo.Ternary(entries == nil, []string{}, entries),
	})
}

func (s *Server) keyPressHandler(w http.ResponseWriter, r *http.Request) {
	var req keyPressRequest
	if err := jsonrs.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid key press payload", http.StatusBadRequest)
		return
	}

	s.page.Ticker.Type(req.Value, req.Key)
	s.writeJSON(w, http.StatusOK, tickerResponse{
		Ticker: s.page.Ticker.Display().Text(),
		Input:  s.page.Ticker.Input().Text(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"server": "UP"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := jsonrs.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorn("Error writing response", obskit.Error(err))
	}
}

// clientIP returns the public address the request came from: the first hop of
// X-Forwarded-For, else the remote address. Loopback, private and otherwise
// non-public addresses yield the empty ip.
func clientIP(r *http.Request) string {
	var forwarded string
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		forwarded, _, _ = strings.Cut(header, ",")
		forwarded = strings.TrimSpace(forwarded)
	}
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}

	raw, _ := lo.Find([]string{forwarded, remote}, func(v string) bool { return v != "" })
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return ""
	}
	return addr.String()
}
