package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"plaza.gg/internal/moderation"
	"plaza.gg/internal/persistence/indexdb"
	persistlog "plaza.gg/internal/persistence/log"
	"plaza.gg/internal/persistence/snapshot"
	"plaza.gg/internal/sim/tuning"
	"plaza.gg/internal/sim/world"
	"plaza.gg/internal/transport/ws"
)

// envOverrides are deploy-time settings that shouldn't require editing the
// tuning file or flags. PLAZA_ADDR etc.
type envOverrides struct {
	Addr          string `envconfig:"ADDR"`
	DataDir       string `envconfig:"DATA_DIR"`
	TuningPath    string `envconfig:"TUNING"`
	ModerationURL string `envconfig:"MODERATION_URL"`
	DisableDB     bool   `envconfig:"DISABLE_DB"`
	EnablePprof   bool   `envconfig:"ENABLE_PPROF_HTTP"`
}

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		tuningPath    = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		moderationURL = flag.String("moderation_url", "", "remote name-moderation endpoint (empty: local heuristic only)")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var env envOverrides
	if err := envconfig.Process("PLAZA", &env); err != nil {
		logger.Fatalf("env: %v", err)
	}
	if env.Addr != "" {
		*addr = env.Addr
	}
	if env.DataDir != "" {
		*dataDir = env.DataDir
	}
	if env.TuningPath != "" {
		*tuningPath = env.TuningPath
	}
	if env.ModerationURL != "" {
		*moderationURL = env.ModerationURL
	}
	if env.DisableDB {
		*disableDB = true
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	w := world.New(world.Config{
		RosterTick:        time.Duration(tune.RosterTickMS) * time.Millisecond,
		FlushEvery:        time.Duration(tune.FlushEverySecs) * time.Second,
		SweepEvery:        time.Duration(tune.SweepEverySecs) * time.Second,
		DailyPlacementCap: tune.DailyPlacementCap,
		CreditBufferSecs:  tune.CreditBufferSecs,
		MaxPresets:        tune.MaxPresets,
		MaxPresetItems:    tune.MaxPresetItems,
		ObjectMaxAge:      time.Duration(tune.ObjectMaxAgeHours) * time.Hour,
		OwnerIdleMax:      time.Duration(tune.OwnerIdleHours) * time.Hour,
		ActivityKeep:      time.Duration(tune.ActivityKeepHours) * time.Hour,
		LedgerPurgeAfter:  time.Duration(tune.LedgerPurgeDays) * 24 * time.Hour,
	}, logger)

	store := snapshot.NewStore(filepath.Join(*dataDir, "state"))
	w.SetSink(store)

	changeLog := persistlog.NewChangeLogger(*dataDir)
	defer changeLog.Close()
	w.SetChangeLogger(changeLog)

	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		w.SetIndexer(idx)
	}

	w.Load()

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	var mod moderation.Checker = moderation.Heuristic{
		MinLen:           tune.Names.MinLen,
		MaxLen:           tune.Names.MaxLen,
		BannedSubstrings: tune.Names.BannedSubstrings,
	}
	if u := strings.TrimSpace(*moderationURL); u != "" {
		mod = moderation.NewRemote(u, mod)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP plaza_sessions Current connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE plaza_sessions gauge\n")
		fmt.Fprintf(rw, "plaza_sessions %d\n", m.Sessions)

		fmt.Fprintf(rw, "# HELP plaza_identities Known device identities.\n")
		fmt.Fprintf(rw, "# TYPE plaza_identities gauge\n")
		fmt.Fprintf(rw, "plaza_identities %d\n", m.Identities)

		fmt.Fprintf(rw, "# HELP plaza_objects Shared objects currently placed.\n")
		fmt.Fprintf(rw, "# TYPE plaza_objects gauge\n")
		fmt.Fprintf(rw, "plaza_objects %d\n", m.Objects)

		fmt.Fprintf(rw, "# HELP plaza_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE plaza_queue_depth gauge\n")
		fmt.Fprintf(rw, "plaza_queue_depth{queue=%q} %d\n", "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "plaza_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "plaza_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP plaza_flushes_total Completed durable flushes.\n")
		fmt.Fprintf(rw, "# TYPE plaza_flushes_total counter\n")
		fmt.Fprintf(rw, "plaza_flushes_total %d\n", m.Flushes)

		fmt.Fprintf(rw, "# HELP plaza_flush_errors_total Flush cycles that failed and were retried.\n")
		fmt.Fprintf(rw, "# TYPE plaza_flush_errors_total counter\n")
		fmt.Fprintf(rw, "plaza_flush_errors_total %d\n", m.FlushErrors)

		fmt.Fprintf(rw, "# HELP plaza_last_flush_unix Unix timestamp of the last successful flush.\n")
		fmt.Fprintf(rw, "# TYPE plaza_last_flush_unix gauge\n")
		fmt.Fprintf(rw, "plaza_last_flush_unix %d\n", m.LastFlushAt)

		fmt.Fprintf(rw, "# HELP plaza_sweeps_total Expiration sweep passes.\n")
		fmt.Fprintf(rw, "# TYPE plaza_sweeps_total counter\n")
		fmt.Fprintf(rw, "plaza_sweeps_total %d\n", m.Sweeps)
	})
	if env.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, mod, ws.Config{
		RequestsPerSec: tune.RateLimits.RequestsPerSec,
		Burst:          tune.RateLimits.Burst,
	}, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The world flushes on ctx cancellation; wait so the final write lands
	// before the change log and index are closed by the defers above.
	<-worldDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
