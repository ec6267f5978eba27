package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/famline/famline/internal/usage"
)

var (
	// Poll metrics
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "famline_polls_total",
			Help: "Total portal polls performed",
		},
		[]string{"result"},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "famline_poll_duration_seconds",
			Help:    "Poll duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	Reauthentications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "famline_reauthentications_total",
			Help: "Total session re-authentications performed",
		},
	)

	// Plan metrics
	PlanLines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "famline_plan_lines",
			Help: "Number of lines on the family plan",
		},
	)

	// Per-line usage metrics, labelled by phone number
	DataUsedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "famline_line_data_used_bytes",
			Help: "Data used in the current billing cycle",
		},
		[]string{"line"},
	)

	DataAllowanceBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "famline_line_data_allowance_bytes",
			Help: "Data allowance for the billing cycle (-1 when unlimited)",
		},
		[]string{"line"},
	)

	VoiceUsedMinutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "famline_line_voice_used_minutes",
			Help: "Voice minutes used in the current billing cycle",
		},
		[]string{"line"},
	)

	SMSUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "famline_line_sms_used",
			Help: "SMS messages used in the current billing cycle",
		},
		[]string{"line"},
	)

	LineUnavailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "famline_line_unavailable",
			Help: "1 when the line's usage could not be retrieved in the last poll",
		},
		[]string{"line"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		PollsTotal,
		PollDuration,
		Reauthentications,
		PlanLines,
		DataUsedBytes,
		DataAllowanceBytes,
		VoiceUsedMinutes,
		SMSUsed,
		LineUnavailable,
	)
}

// Publish updates the per-line gauges from a completed report.
func Publish(rep usage.FamilyReport) {
	PlanLines.Set(float64(rep.Totals.Lines))

	for _, entry := range rep.Lines {
		line := entry.Line.Number

		if entry.Unavailable {
			LineUnavailable.WithLabelValues(line).Set(1)
			continue
		}
		LineUnavailable.WithLabelValues(line).Set(0)

		rec := entry.Record
		DataUsedBytes.WithLabelValues(line).Set(float64(rec.Data.Used))
		DataAllowanceBytes.WithLabelValues(line).Set(float64(rec.Data.Allowance))
		VoiceUsedMinutes.WithLabelValues(line).Set(float64(rec.Voice.Used))
		SMSUsed.WithLabelValues(line).Set(float64(rec.SMS.Used))
	}
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
