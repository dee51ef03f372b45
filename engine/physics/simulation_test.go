package physics

import (
	"testing"

	"github.com/benbjohnson/clock"
	dto "github.com/prometheus/client_model/go"

	"github.com/nmxmxh/dof-engine/engine/metrics"
	"github.com/nmxmxh/dof-engine/engine/physics/broadphase"
	"github.com/nmxmxh/dof-engine/engine/physics/geom"
	"github.com/nmxmxh/dof-engine/engine/store"
)

type posX float64
type posY float64
type velX float64
type velY float64
type radius float64
type immobileTag struct{}

func circleAliases() Aliases {
	return Aliases{
		PosX:    BindFloat[posX](),
		PosY:    BindFloat[posY](),
		LinVelX: BindFloat[velX](),
		LinVelY: BindFloat[velY](),
		Radius:  BindFloat[radius](),
	}
}

func newCircleSim(t *testing.T) (*Simulation, *store.Table) {
	t.Helper()
	db := store.NewDatabase()
	table := db.CreateTable(
		store.StableIDRow(),
		store.PerElementRow[posX](), store.PerElementRow[posY](),
		store.PerElementRow[velX](), store.PerElementRow[velY](),
		store.PerElementRow[radius](),
	)
	shapes := NewShapeRegistry()
	shapes.Register(table.Index, ShapeCircle)
	grid := broadphase.NewGrid(4, 4, 10, 0.5, -20, -20)
	sim := NewSimulation(db, circleAliases(), shapes, grid, DefaultConfig)
	return sim, table
}

func TestSimulationStepGeneratesAndResolvesContact(t *testing.T) {
	sim, table := newCircleSim(t)
	refs := sim.DB.Modifier(table).Append(2)

	x, _ := store.GetColumn[posX](table)
	y, _ := store.GetColumn[posY](table)
	vx, _ := store.GetColumn[velX](table)
	vy, _ := store.GetColumn[velY](table)
	r, _ := store.GetColumn[radius](table)

	*x.At(0), *y.At(0) = -0.55, 0
	*x.At(1), *y.At(1) = 0.55, 0
	*vx.At(0) = 1
	*vx.At(1) = -1
	*r.At(0), *r.At(1) = 1, 1

	sim.Step(1.0 / 60)

	pair, ok := sim.Graph.Pair(refs[0], refs[1])
	if !ok {
		t.Fatal("expected a persistent pair between the two overlapping circles")
	}
	if !pair.Touching {
		t.Fatal("expected narrowphase to report the circles touching")
	}

	// After one solve+integrate step the bodies should no longer be
	// closing at the same rate they started (the solver damped the
	// approach, it did not accelerate it).
	closingRate := (*vx.At(1) - *vx.At(0))
	if closingRate >= -1e-9 {
		// fine: non-negative relative velocity along the separating
		// axis means the contact no longer penetrates further.
	} else if closingRate <= -2.0 {
		t.Fatalf("expected the solver to reduce the closing rate, got %v", closingRate)
	}
}

func TestSimulationStepNoContactWhenFarApart(t *testing.T) {
	sim, table := newCircleSim(t)
	refs := sim.DB.Modifier(table).Append(2)

	x, _ := store.GetColumn[posX](table)
	y, _ := store.GetColumn[posY](table)
	r, _ := store.GetColumn[radius](table)
	*x.At(0), *y.At(0) = 0, 0
	*x.At(1), *y.At(1) = 15, 0
	*r.At(0), *r.At(1) = 1, 1

	sim.Step(1.0 / 60)

	if _, ok := sim.Graph.Pair(refs[0], refs[1]); ok {
		t.Fatal("expected no pair between bodies far apart")
	}
}

func TestSimulationGravityIntegratesFreeFall(t *testing.T) {
	sim, table := newCircleSim(t)
	sim.Gravity = geom.Vec2{X: 0, Y: -10}
	sim.DB.Modifier(table).Append(1)

	x, _ := store.GetColumn[posX](table)
	y, _ := store.GetColumn[posY](table)
	r, _ := store.GetColumn[radius](table)
	*x.At(0), *y.At(0) = 0, 100
	*r.At(0) = 1

	sim.Step(0.1)

	if *y.At(0) >= 100 {
		t.Fatalf("expected body to fall under gravity, y=%v", *y.At(0))
	}
}

func TestSimulationStepReportsDurationMetric(t *testing.T) {
	sim, _ := newCircleSim(t)
	mock := clock.NewMock()
	sim.Clock = mock
	sim.Metrics = metrics.NewRegistry()

	sim.Step(1.0 / 60)

	m := &dto.Metric{}
	if err := sim.Metrics.StepDuration.Write(m); err != nil {
		t.Fatalf("failed to read StepDuration: %v", err)
	}
	if m.Histogram.GetSampleCount() != 1 {
		t.Fatalf("expected exactly one observed step duration, got %d", m.Histogram.GetSampleCount())
	}
}
