// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. It is shared by
// the sqlite and postgres backends, which differ only in how the *gorm.DB is
// created and maintained.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/model"
	"github.com/ctralie/aruco2-fast/internal/model/convert"
	"github.com/ctralie/aruco2-fast/internal/queue"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	Tag        string
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Detections *queue.Queue[model.Detection]
	Poses      *queue.Queue[model.FusedPose]
	Frames     *queue.Queue[model.FrameRecord]
	FpsEvents  *queue.Queue[model.FpsEvent]
	Perfs      *queue.Queue[model.SessionPerformance]
}

func newQueues() *queues {
	return &queues{
		Detections: queue.New[model.Detection](),
		Poses:      queue.New[model.FusedPose](),
		Frames:     queue.New[model.FrameRecord](),
		FpsEvents:  queue.New[model.FpsEvent](),
		Perfs:      queue.New[model.SessionPerformance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	dbReady   bool

	lastWriteDurationMs atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend requires an injected DB")
	}

	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.dbReady = true

	b.startDBWriter()
	return nil
}

// setupDB migrates tables and creates default settings if they don't exist.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager.Logger()

	if !db.Migrator().HasTable(&model.TrackerInfo{}) {
		if err := db.AutoMigrate(&model.TrackerInfo{}); err != nil {
			return fmt.Errorf("failed to auto-migrate TrackerInfo: %w", err)
		}
		if err := db.Create(&model.TrackerInfo{
			InstanceName: "aruco-tracker",
			Description:  "AR marker pose tracking",
		}).Error; err != nil {
			return fmt.Errorf("failed to create tracker_info entry: %w", err)
		}
	}

	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.Info("PostGIS Extension created")
	}

	log.Info("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info("Database setup complete")
	return nil
}

// Close stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	return nil
}

// StartSession creates the session row in the DB and stores its ID for the writer.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.CoreToSession(*s, b.deps.Tag)
	created, err := gormSession.GetOrInsert(b.deps.DB)
	if err != nil {
		return fmt.Errorf("failed to get or insert session: %w", err)
	}
	if created {
		b.deps.LogManager.Logger().Info("Session created", "session", s.Name, "id", gormSession.ID)
	}

	// Assign DB-generated ID back to the core type
	s.ID = gormSession.ID
	b.sessionID.Store(uint64(gormSession.ID))

	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession drains any queued rows so the session is complete on disk.
func (b *Backend) EndSession() error {
	b.flushQueues()
	return nil
}

// RecordDetection converts a core detection to GORM and pushes to the write queue.
func (b *Backend) RecordDetection(d *core.MarkerDetection) error {
	gormObj := convert.CoreToDetection(*d)
	b.queues.Detections.Push(gormObj)
	return nil
}

// RecordFusedPose converts and queues a fused pose for the DB writer.
func (b *Backend) RecordFusedPose(p *core.FusedPose) error {
	gormObj := convert.CoreToFusedPose(*p)
	b.queues.Poses.Push(gormObj)
	return nil
}

// RecordFrame converts and queues a frame record for the DB writer.
func (b *Backend) RecordFrame(f *core.FrameState) error {
	gormObj := convert.CoreToFrameRecord(*f)
	b.queues.Frames.Push(gormObj)
	return nil
}

// RecordFps converts and queues a capture fps report.
func (b *Backend) RecordFps(r *core.FpsReport) error {
	gormObj := convert.CoreToFpsEvent(*r)
	b.queues.FpsEvents.Push(gormObj)
	return nil
}

// RecordSessionPerf converts and queues a performance snapshot.
func (b *Backend) RecordSessionPerf(p *core.SessionPerf) error {
	gormObj := convert.CoreToSessionPerformance(*p)
	b.queues.Perfs.Push(gormObj)
	return nil
}

// QueueLengths reports pending write queue sizes for the monitor.
func (b *Backend) QueueLengths() (detections, poses, frames int) {
	if b.queues == nil {
		return 0, 0, 0
	}
	return b.queues.Detections.Len(), b.queues.Poses.Len(), b.queues.Frames.Len()
}

// LastWriteDurationMs reports how long the most recent write cycle took.
func (b *Backend) LastWriteDurationMs() float32 {
	return float32(b.lastWriteDurationMs.Load())
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, logErr func(string, error), prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		logErr(name, err)
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
}

// flushQueues drains every queue into the DB once.
func (b *Backend) flushQueues() {
	log := b.deps.LogManager.Logger()
	logErr := func(name string, err error) {
		log.Error("Error writing batch", "queue", name, "error", err)
	}

	sessionID := uint(b.sessionID.Load())

	stampDetections := func(items []model.Detection) {
		for i := range items {
			if items[i].SessionID == 0 {
				items[i].SessionID = sessionID
			}
		}
	}
	stampPoses := func(items []model.FusedPose) {
		for i := range items {
			if items[i].SessionID == 0 {
				items[i].SessionID = sessionID
			}
		}
	}
	stampFrames := func(items []model.FrameRecord) {
		for i := range items {
			if items[i].SessionID == 0 {
				items[i].SessionID = sessionID
			}
		}
	}
	stampFps := func(items []model.FpsEvent) {
		for i := range items {
			if items[i].SessionID == 0 {
				items[i].SessionID = sessionID
			}
		}
	}
	stampPerfs := func(items []model.SessionPerformance) {
		for i := range items {
			if items[i].SessionID == 0 {
				items[i].SessionID = sessionID
			}
		}
	}

	start := time.Now()
	writeQueue(b.deps.DB, b.queues.Detections, "detections", logErr, stampDetections)
	writeQueue(b.deps.DB, b.queues.Poses, "fused poses", logErr, stampPoses)
	writeQueue(b.deps.DB, b.queues.Frames, "frame records", logErr, stampFrames)
	writeQueue(b.deps.DB, b.queues.FpsEvents, "fps events", logErr, stampFps)
	writeQueue(b.deps.DB, b.queues.Perfs, "session performances", logErr, stampPerfs)
	b.lastWriteDurationMs.Store(time.Since(start).Milliseconds())
}

// startDBWriter starts the background goroutine that periodically drains queues into the DB.
func (b *Backend) startDBWriter() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.flushQueues()
			time.Sleep(2 * time.Second)
		}
	}()
}
