// Command orle runs one worker: it builds a world of the universe on disk and then
// processes job documents dropped into the world's job-queue directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/orle/internal/api"
	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/events"
	"github.com/AaronLay10/orle/internal/jlog"
	"github.com/AaronLay10/orle/internal/mqtt"
	"github.com/AaronLay10/orle/internal/process"
	"github.com/AaronLay10/orle/internal/storage/postgres"
	"github.com/AaronLay10/orle/internal/version"
	"github.com/AaronLay10/orle/internal/watch"
	"github.com/AaronLay10/orle/internal/world"
)

func main() {
	var (
		configPath  = flag.String("config", "universe.yml", "path to the universe config file")
		worldID     = flag.Int("world", 0, "id of the world to run")
		overwrite   = flag.Bool("overwrite", false, "delete and rebuild the world's folders")
		local       = flag.String("local", "", "value of $LOCAL in the universe config (default: working directory)")
		interval    = flag.Duration("interval", process.DefaultInterval, "wait between searches of an empty job queue")
		port        = flag.Int("port", 8080, "status API port, 0 disables the API")
		usePostgres = flag.Bool("postgres", false, "persist events to Postgres (PGHOST, PGPORT, PGUSER, PGDATABASE, PGPASSWORD)")
		useMQTT     = flag.Bool("mqtt", false, "publish lifecycle events to the MQTT broker at MQTT_URL")
		noWatch     = flag.Bool("no-watch", false, "poll only, do not watch the job-queue directory")
		setupOnly   = flag.Bool("setup-only", false, "build the world and exit")
	)
	flag.Parse()

	workerID := uuid.NewString()
	em := events.NewEmitter(events.Options{
		Output: os.Stdout,
		Fields: map[string]interface{}{"worker": workerID},
	})

	hostname, _ := os.Hostname()
	em.Emit("info", "system.startup", "orle worker starting", map[string]interface{}{
		"service":  "orle",
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
		"world":    *worldID,
	})

	if err := run(em, workerID, runOptions{
		configPath:  *configPath,
		worldID:     *worldID,
		overwrite:   *overwrite,
		local:       *local,
		interval:    *interval,
		port:        *port,
		usePostgres: *usePostgres,
		useMQTT:     *useMQTT,
		watch:       !*noWatch,
		setupOnly:   *setupOnly,
	}); err != nil {
		em.Emit("error", "system.error", err.Error(), nil)
		os.Exit(1)
	}
	em.Emit("info", "system.shutdown", "orle worker stopped", nil)
}

type runOptions struct {
	configPath  string
	worldID     int
	overwrite   bool
	local       string
	interval    time.Duration
	port        int
	usePostgres bool
	useMQTT     bool
	watch       bool
	setupOnly   bool
}

func run(em *events.Emitter, workerID string, o runOptions) error {
	u, err := config.LoadUniverse(o.configPath, config.LoadOptions{Local: o.local})
	if err != nil {
		return fmt.Errorf("failed to load universe config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	em.Emit("info", "world.setup", "Setting up world folders.", map[string]interface{}{"world": o.worldID, "overwrite": o.overwrite})
	builder := world.NewBuilder(u, jlog.New(em, map[string]interface{}{"world": o.worldID}))
	if err := builder.Setup(o.worldID, o.overwrite); err != nil {
		em.Emit("error", "world.failed", "World setup failed.", map[string]interface{}{"world": o.worldID, "error": err.Error()})
		return err
	}
	w, err := builder.GetWorld(o.worldID)
	if err != nil {
		return err
	}
	em.Emit("info", "world.ready", "World is set up.", map[string]interface{}{"world": w.ID, "job_dir": w.JobDir})
	if o.setupOnly {
		return nil
	}

	wake := make(chan struct{}, 1)
	signalWake := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	sinkProbes := map[string]func() bool{}

	var store *postgres.Client
	if o.usePostgres {
		if pg := connectPostgres(ctx, em, w.ID, workerID); pg != nil {
			defer pg.Close()
			em.AddSink("postgres", pg)
			sinkProbes["postgres"] = func() bool {
				pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				return em.SinkHealthy("postgres") && pg.Ping(pctx) == nil
			}
			store = pg
		}
	}

	if o.useMQTT {
		client, mon := connectMQTT(ctx, em, w.ID, workerID, signalWake)
		defer client.Disconnect()
		defer mon.Stop()
		sinkProbes["mqtt"] = mon.Connected
	}

	if o.watch {
		n, err := watch.New(ctx, w.JobDir)
		if err != nil {
			log.Printf("watch: %v, falling back to polling", err)
		} else {
			defer n.Close()
			go forward(ctx, n.C(), signalWake)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case err := <-n.Errors():
						log.Printf("watch: %v", err)
					}
				}
			}()
		}
	}

	proc := process.New(w, process.Options{
		Interval: o.interval,
		Wake:     wake,
		Emitter:  em,
		WorkerID: workerID,
	})

	if o.port > 0 {
		apiOpts, err := api.OptionsFromEnv()
		if err != nil {
			return err
		}
		srv := api.NewServer(em, proc, w.ID, apiOpts)
		for name, probe := range sinkProbes {
			srv.SetSink(name, probe)
		}
		if store != nil {
			srv.SetStore(store)
		}
		srv.Start(ctx, o.port)
	}

	return proc.Start(ctx)
}

func connectPostgres(ctx context.Context, em *events.Emitter, worldID int, workerID string) *postgres.Client {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		log.Printf("postgres: %v", err)
		return nil
	}
	pg, err := postgres.New(ctx, cfg, worldID, workerID)
	if err != nil {
		log.Printf("postgres: %v", err)
		em.Emit("warn", "sink.error", "postgres unavailable, events are not persisted", map[string]interface{}{"sink": "postgres", "error": err.Error()})
		return nil
	}
	em.Emit("info", "sink.connected", "postgres connected", map[string]interface{}{"sink": "postgres", "host": cfg.Host})
	return pg
}

func connectMQTT(ctx context.Context, em *events.Emitter, worldID int, workerID string, onWake func()) (*mqtt.Client, *mqtt.Monitor) {
	var wake *mqtt.WakeSubscriber
	client := mqtt.NewClient("orle-"+workerID, func() {
		if wake == nil {
			return
		}
		if err := wake.Resubscribe(); err != nil {
			log.Printf("mqtt: failed to subscribe to %s: %v", mqtt.WakeTopic(worldID), err)
		}
	})
	wake = mqtt.NewWakeSubscriber(client, worldID)

	if client.ConnectOrLog() {
		if err := wake.Subscribe(); err != nil {
			log.Printf("mqtt: failed to subscribe to %s: %v", mqtt.WakeTopic(worldID), err)
		}
	}
	em.AddSink("mqtt", mqtt.NewPublisher(client, worldID))
	go forward(ctx, wake.C(), onWake)

	mon := mqtt.NewMonitor(client, em)
	mon.Start(10 * time.Second)
	return client, mon
}

// forward calls fn for every signal on c until ctx ends.
func forward(ctx context.Context, c <-chan struct{}, fn func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c:
			fn()
		}
	}
}
