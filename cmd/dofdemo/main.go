// Command dofdemo wires the table store, task graph, event bus and
// physics pipeline together over a small falling-circles scene, the
// way a game's per-frame loop would: spawn through the event bus,
// run a task-graph pass over the ball table, step physics, repeat.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nmxmxh/dof-engine/engine/events"
	"github.com/nmxmxh/dof-engine/engine/ids"
	"github.com/nmxmxh/dof-engine/engine/metrics"
	"github.com/nmxmxh/dof-engine/engine/physics"
	"github.com/nmxmxh/dof-engine/engine/physics/broadphase"
	"github.com/nmxmxh/dof-engine/engine/physics/geom"
	"github.com/nmxmxh/dof-engine/engine/store"
	"github.com/nmxmxh/dof-engine/engine/task"
	"github.com/nmxmxh/dof-engine/kernel/utils"
)

type PosX float64
type PosY float64
type VelX float64
type VelY float64
type BallRadius float64
type Immobile struct{}

func circleAliases() physics.Aliases {
	return physics.Aliases{
		PosX:       physics.BindFloat[PosX](),
		PosY:       physics.BindFloat[PosY](),
		LinVelX:    physics.BindFloat[VelX](),
		LinVelY:    physics.BindFloat[VelY](),
		Radius:     physics.BindFloat[BallRadius](),
		IsImmobile: physics.BindTag[Immobile](),
	}
}

func main() {
	log := utils.DefaultLogger("dofdemo")
	runID := utils.GenerateID()

	db := store.NewDatabase()
	log.Info("world created", utils.String("world_id", db.WorldID.String()), utils.String("run_id", runID))

	shutdown := utils.NewGracefulShutdown(5*time.Second, log)

	ballTable := db.CreateTable(
		store.StableIDRow(),
		store.PerElementRow[PosX](), store.PerElementRow[PosY](),
		store.PerElementRow[VelX](), store.PerElementRow[VelY](),
		store.PerElementRow[BallRadius](),
	)
	groundTable := db.CreateTable(
		store.StableIDRow(),
		store.PerElementRow[PosX](), store.PerElementRow[PosY](),
		store.PerElementRow[VelX](), store.PerElementRow[VelY](),
		store.PerElementRow[BallRadius](),
		store.TagRow[Immobile](),
	)

	shapes := physics.NewShapeRegistry()
	shapes.Register(ballTable.Index, physics.ShapeCircle)
	shapes.Register(groundTable.Index, physics.ShapeCircle)

	grid := broadphase.NewGrid(16, 16, 5, 0.25, -40, -40)
	sim := physics.NewSimulation(db, circleAliases(), shapes, grid, physics.DefaultConfig)
	sim.Gravity = geom.Vec2{X: 0, Y: -9.8}
	sim.Iterations = 8
	sim.Graph.Log = func(format string, args ...any) {
		log.Warn(fmt.Sprintf(format, args...))
	}

	reg := prometheus.NewRegistry()
	sim.Metrics = metrics.NewRegistry()
	sim.Metrics.MustRegister(reg)

	// Spawn five balls through the deferred event bus rather than
	// appending to the table directly, the way a frame's creation
	// barrier would apply gameplay-issued spawn commands.
	bus := events.NewBus(64)
	ballRefs := make([]ids.StableRef, 0, 5)
	for i := 0; i < 5; i++ {
		key := db.CreateKey()
		bus.Push(events.NewCreate(key, ballTable.Index))
		ballRefs = append(ballRefs, key)
	}
	events.Apply(db, bus)

	x, _ := store.GetColumn[PosX](ballTable)
	y, _ := store.GetColumn[PosY](ballTable)
	r, _ := store.GetColumn[BallRadius](ballTable)
	for i, ref := range ballRefs {
		_, row, ok := db.Resolve(ref)
		if !ok {
			continue
		}
		*x.At(row) = float64(i)*1.3 - 2.6
		*y.At(row) = 12 + float64(i)*0.5
		*r.At(row) = 0.5
	}

	groundRefs := db.Modifier(groundTable).Append(1)
	gx, _ := store.GetColumn[PosX](groundTable)
	gy, _ := store.GetColumn[PosY](groundTable)
	gr, _ := store.GetColumn[BallRadius](groundTable)
	_, groundRow, _ := db.Resolve(groundRefs[0])
	*gx.At(groundRow) = 0
	*gy.At(groundRow) = -10
	*gr.At(groundRow) = 10

	clk := clock.New()
	sim.Clock = clk
	const dt = 1.0 / 60.0
	ticker := clk.Ticker(time.Duration(dt * float64(time.Second)))
	shutdown.Register(func() error {
		ticker.Stop()
		return nil
	})

	ctx := context.Background()
	for frame := 0; frame < 180; frame++ {
		<-ticker.C

		g := task.NewGraph()
		g.Clock = clk
		g.Duration = sim.Metrics.TaskDuration
		tb := g.NewTask("air-damping")
		velX, _ := task.WriteColumn[VelX](tb, ballTable)
		velY, _ := task.WriteColumn[VelY](tb, ballTable)
		tb.Config(task.AppTaskConfig{WorkItemCount: ballTable.Len(), BatchSize: 2})
		tb.SetCallback(func(args task.Args) {
			for i := args.Begin; i < args.End; i++ {
				*velX.At(i) *= 0.999
				*velY.At(i) *= 0.999
			}
		})
		g.Submit(tb)

		if err := g.Execute(ctx, 4); err != nil {
			log.Error("task graph execution failed", utils.Err(utils.WrapError(err, "air-damping pass")))
			shutdown.Shutdown(ctx)
			return
		}

		sim.Step(dt)

		if frame%30 == 0 {
			families, err := reg.Gather()
			if err != nil {
				log.Warn("metrics gather failed", utils.Err(err))
				continue
			}
			_, row0, ok := db.Resolve(ballRefs[0])
			if !ok {
				continue
			}
			log.Info("frame tick",
				utils.Int("frame", frame),
				utils.Int("metric_families", len(families)),
				utils.Float64("ball0_y", float64(*y.At(row0))),
			)
		}
	}

	if err := shutdown.Shutdown(ctx); err != nil {
		log.Warn("shutdown reported an error", utils.Err(err))
	}
	log.Info("demo complete", utils.String("run_id", runID))
}
