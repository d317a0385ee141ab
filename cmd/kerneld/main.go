// Command kerneld boots the agent kernel's subsystems and exposes a minimal
// HTTP surface (/health, /metrics, /pool/stats, /pool/submit, /mesh/call,
// /workflow/run) for local exploration.
// It is a demo harness, not a production daemon: a real deployment wires
// these same constructors from its own service rather than this binary.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nameearly/agentkernel/balancer"
	"github.com/nameearly/agentkernel/breaker"
	"github.com/nameearly/agentkernel/cache"
	"github.com/nameearly/agentkernel/kernel"
	"github.com/nameearly/agentkernel/metrics"
	"github.com/nameearly/agentkernel/pool"
	"github.com/nameearly/agentkernel/queue"
	"github.com/nameearly/agentkernel/ratelimit"
	"github.com/nameearly/agentkernel/registry"
	"github.com/nameearly/agentkernel/scheduler"
	"github.com/nameearly/agentkernel/workflow"
)

func main() {
	reg := metrics.NewRegistry()
	tasksSubmitted := reg.Counter("kernel_tasks_submitted_total", "tasks accepted by the worker pool")
	tasksCompleted := reg.Counter("kernel_tasks_completed_total", "tasks that ran to completion")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(reg.AsCollector())

	svcRegistry := registry.New(30 * time.Second)
	lb := balancer.New(balancer.LeastConnections)
	limiter := ratelimit.NewTokenBucket(100, time.Second, 200)
	mesh := kernel.NewMeshClient(svcRegistry, lb, limiter, breaker.DefaultConfig)

	svcRegistry.Register(registry.Instance{
		ID:          "agent-1",
		ServiceName: "agent-runtime",
		Host:        "127.0.0.1",
		Port:        9001,
		Status:      registry.Healthy,
	})

	demoCache := cache.NewMultiTier(
		cache.TierConfig{MaxSize: 256, DefaultTTL: time.Minute, Policy: cache.LRU},
		cache.TierConfig{MaxSize: 4096, DefaultTTL: 10 * time.Minute, Policy: cache.LRU},
		cache.TierConfig{MaxSize: 65536, DefaultTTL: time.Hour, Policy: cache.LFU},
	)

	workerPool := pool.New(
		pool.DefaultConfig(),
		func(ctx context.Context, payload any) error {
			if callable, ok := payload.(scheduler.Callable); ok {
				if err := callable(ctx); err != nil {
					return err
				}
			}
			tasksCompleted.Inc()
			return nil
		},
		func(a *pool.Agent) error { return nil },
		func(a *pool.Agent) bool { return true },
		func() float64 { return 0 },
	)
	workerPool.Start()
	defer workerPool.Stop()

	q := queue.New()
	sched := scheduler.New(q, nil)
	if err := sched.AddTask(scheduler.ScheduledTask{
		ID:       "cache-sweep",
		Name:     "periodic cache visibility log",
		Priority: 5,
		Trigger:  scheduler.Trigger{Kind: scheduler.TriggerInterval, Period: time.Minute},
		Callable: func(ctx context.Context) error {
			log.Printf("kerneld: cache stats %+v", demoCache.Stats())
			return nil
		},
	}); err != nil {
		log.Fatalf("kerneld: failed to register scheduled task: %v", err)
	}
	schedCtx, cancelSched := context.WithCancel(context.Background())
	sched.Start(schedCtx)
	defer cancelSched()
	defer sched.Stop()
	go func() {
		for {
			task, ok := q.Dequeue(schedCtx, true)
			if !ok {
				return
			}
			workerPool.SubmitTask(task.Payload, task.Priority)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/pool/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(workerPool.Stats())
	})

	mux.HandleFunc("/pool/submit", func(w http.ResponseWriter, r *http.Request) {
		tasksSubmitted.Inc()
		id := workerPool.SubmitTask(map[string]any{"submitted_at": time.Now().Format(time.RFC3339)}, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"task_id": id})
	})

	mux.HandleFunc("/mesh/call", func(w http.ResponseWriter, r *http.Request) {
		result, err := mesh.Call(r.Context(), "agent-runtime", r.RemoteAddr, func(ctx context.Context, inst registry.Instance) (any, error) {
			return map[string]string{"routed_to": inst.ID}, nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("/workflow/run", func(w http.ResponseWriter, r *http.Request) {
		wf := workflow.New()
		wf.AddNode(&workflow.Node{
			ID: "fetch",
			Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
				return "fetched", nil
			},
		})
		wf.AddNode(&workflow.Node{
			ID:           "summarize",
			Dependencies: []string{"fetch"},
			Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
				return "summarized:" + deps["fetch"].(string), nil
			},
		})
		status, err := wf.Execute(r.Context(), nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
	})

	addr := os.Getenv("KERNELD_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	log.Printf("kerneld listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
