package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// api serves the operator HTTP surface: metrics, profiling, and message
// injection endpoints that share the bot's rate-limited send path.
func (b *Bot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/allocs:objects|/gc/heap/goal:bytes|/memory/classes/heap/released:bytes|/memory/classes/heap/stacks:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("POST /api/say", b.apiSay)
	mux.HandleFunc("POST /api/whisper", b.apiWhisper)
	mux.HandleFunc("GET /api/status", b.apiStatus)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

type apiSend struct {
	// To is the target: a channel path for say, a username for whisper.
	// Say defaults to the bot's current channel.
	To   string `json:"to,omitzero"`
	Text string `json:"text"`
}

func (b *Bot) apiSay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "say"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	var v apiSend
	if err := json.UnmarshalDecode(jsontext.NewDecoder(r.Body), &v); err != nil {
		log.WarnContext(ctx, "bad request", slog.Any("err", err))
		jsonerror(w, http.StatusBadRequest, "message read failed")
		return
	}
	if v.Text == "" {
		jsonerror(w, http.StatusBadRequest, "empty text")
		return
	}
	ch := v.To
	if ch == "" {
		ch = b.set.Current().Channel
	}
	if err := b.say(ctx, ch, v.Text); err != nil {
		log.ErrorContext(ctx, "say failed", slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bot) apiWhisper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "whisper"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	var v apiSend
	if err := json.UnmarshalDecode(jsontext.NewDecoder(r.Body), &v); err != nil {
		log.WarnContext(ctx, "bad request", slog.Any("err", err))
		jsonerror(w, http.StatusBadRequest, "message read failed")
		return
	}
	if v.To == "" || v.Text == "" {
		jsonerror(w, http.StatusBadRequest, "need to and text")
		return
	}
	if err := b.whisper(ctx, v.To, v.Text); err != nil {
		log.ErrorContext(ctx, "whisper failed", slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bot) apiStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := b.set.Current()
	v := struct {
		Connected bool   `json:"connected"`
		Channel   string `json:"channel"`
		Nickname  string `json:"nickname"`
		Locked    bool   `json:"locked"`
		Users     int    `json:"users"`
		Uptime    string `json:"uptime"`
		Status    int    `json:"status"`
	}{
		Connected: b.connected() != nil,
		Channel:   s.Channel,
		Nickname:  s.Nickname,
		Locked:    b.locked.Load(),
		Users:     b.roster.Len(),
		Uptime:    time.Since(b.start).Round(time.Second).String(),
		Status:    http.StatusOK,
	}
	u, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(u); err != nil {
		slog.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}
