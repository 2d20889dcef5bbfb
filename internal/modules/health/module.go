package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	executionsvc "trade_core/internal/modules/execution/service"
	"trade_core/internal/modules/health/service"
	strategysvc "trade_core/internal/modules/strategy/service"
)

func NewMux(
	state *service.State,
	brk *brokersvc.Broker,
	strat *strategysvc.StrategyEngine,
	locks *executionsvc.LockTable,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: process is up
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: pipeline is wired and serving
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// debugging JSON with the pipeline gauges
		tickDepth, _ := brk.Depth(r.Context(), models.TopicMarketTickClosed)
		sigDepth, _ := brk.Depth(r.Context(), models.TopicTradingSignal)

		resp := map[string]any{
			"ready":       state.Ready(),
			"wsConnected": state.WSConnected(),
			"uptimeSec":   int64(state.Uptime().Seconds()),
			"lastTickUnix": func() int64 {
				t := state.LastTick()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),

			"tickQueueDepth":    tickDepth,
			"signalQueueDepth":  sigDepth,
			"runningStrategies": strat.Running(),
			"signalsEmitted":    strat.SignalCount(),
			"evalLatencyUs":     strat.EvalLatency().Microseconds(),
			"busyLocks":         locks.Busy(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux, state *service.State) {
	srv := &http.Server{
		Addr:              cfg.Service.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
