// Package tradeplan keeps the rationale behind each submitted order: what was
// intended, why, how it was later modified, and how it ended.
package tradeplan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/util"
)

var (
	ErrUnknownPlan  = errors.New("no trade plan for order")
	ErrPlanArchived = errors.New("trade plan already archived")
)

type Status string

const (
	Active   Status = "active"
	Archived Status = "archived"
)

type Modification struct {
	Timestamp time.Time      `json:"timestamp"`
	Changes   map[string]any `json:"changes"`
	Reason    string         `json:"reason"`
}

type Plan struct {
	OrderID       string           `json:"order_id"`
	Symbol        string           `json:"symbol"`
	Action        order.Action     `json:"action"`
	Quantity      int64            `json:"quantity"`
	OrderType     order.Type       `json:"order_type"`
	LimitPrice    *decimal.Decimal `json:"limit_price"`
	StopPrice     *decimal.Decimal `json:"stop_price"`
	Reason        string           `json:"reason"`
	Status        Status           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ModifiedAt    *time.Time       `json:"modified_at"`
	ArchivedAt    *time.Time       `json:"archived_at"`
	ArchiveReason string           `json:"archive_reason"`
	Modifications []Modification   `json:"modifications"`
}

func (p *Plan) clone() Plan {
	out := *p
	out.Modifications = append([]Modification(nil), p.Modifications...)
	return out
}

const (
	activeFile  = "trade_plans.json"
	archiveFile = "trade_plans_archive.json"
)

// Store persists plans in two files, active and archived, keyed by broker order id.
// Both files are rewritten atomically on every change.
type Store struct {
	dir   string
	clock util.Clock
	log   *zap.Logger

	mu       sync.Mutex
	active   map[string]*Plan
	archived map[string]*Plan
}

// Open loads existing plans from dir. Unreadable files are logged and treated as
// empty: plans are annotations, not financial state.
func Open(dir string, clock util.Clock, log *zap.Logger) (*Store, error) {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		dir:      dir,
		clock:    clock,
		log:      log,
		active:   make(map[string]*Plan),
		archived: make(map[string]*Plan),
	}
	if err := s.load(activeFile, &s.active); err != nil {
		return nil, err
	}
	if err := s.load(archiveFile, &s.archived); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(name string, into *map[string]*Plan) error {
	path := filepath.Join(s.dir, name)
	m := make(map[string]*Plan)
	err := util.LoadJSON(path, &m)
	switch {
	case err == nil:
		*into = m
	case errors.Is(err, util.ErrNoFile):
	case errors.Is(err, util.ErrDecode):
		s.log.Warn("trade plan file unreadable, starting empty", zap.String("path", path), zap.Error(err))
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (s *Store) saveLocked(name string, m map[string]*Plan) error {
	if err := util.SaveJSON(filepath.Join(s.dir, name), m); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Create records a new active plan for a submitted order.
func (s *Store) Create(orderID string, req order.Request, reason string) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Plan{
		OrderID:       orderID,
		Symbol:        req.Symbol(),
		Action:        req.Action(),
		Quantity:      req.Quantity(),
		OrderType:     req.Type(),
		Reason:        reason,
		Status:        Active,
		CreatedAt:     s.clock.Now(),
		Modifications: []Modification{},
	}
	if lp, ok := req.LimitPrice(); ok {
		p.LimitPrice = &lp
	}
	if sp, ok := req.StopPrice(); ok {
		p.StopPrice = &sp
	}
	s.active[orderID] = p
	if err := s.saveLocked(activeFile, s.active); err != nil {
		return Plan{}, err
	}
	return p.clone(), nil
}

// RecordModification appends to an active plan's history. Unknown ids are ignored
// and reported as false.
func (s *Store) RecordModification(orderID string, changes map[string]any, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.active[orderID]
	if !ok {
		return false, nil
	}
	now := s.clock.Now()
	p.Modifications = append(p.Modifications, Modification{Timestamp: now, Changes: changes, Reason: reason})
	p.ModifiedAt = &now
	return true, s.saveLocked(activeFile, s.active)
}

// Archive moves a plan from active to archived. Unknown ids are reported as false.
func (s *Store) Archive(orderID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.active[orderID]
	if !ok {
		return false, nil
	}
	s.archiveLocked(orderID, p, reason)
	return true, s.saveBothLocked()
}

// ArchiveOrders archives the active plans among orderIDs with one write and
// returns how many moved. Ids without an active plan are skipped.
func (s *Store) ArchiveOrders(orderIDs []string, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range orderIDs {
		if p, ok := s.active[id]; ok {
			s.archiveLocked(id, p, reason)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.saveBothLocked()
}

func (s *Store) archiveLocked(id string, p *Plan, reason string) {
	now := s.clock.Now()
	p.Status = Archived
	p.ArchivedAt = &now
	p.ArchiveReason = reason
	delete(s.active, id)
	s.archived[id] = p
}

func (s *Store) saveBothLocked() error {
	if err := s.saveLocked(activeFile, s.active); err != nil {
		return err
	}
	return s.saveLocked(archiveFile, s.archived)
}

// Active returns active plans, oldest first.
func (s *Store) Active() []Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Plan, 0, len(s.active))
	for _, p := range s.active {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get finds a plan whether active or archived.
func (s *Store) Get(orderID string) (Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.active[orderID]; ok {
		return p.clone(), true
	}
	if p, ok := s.archived[orderID]; ok {
		return p.clone(), true
	}
	return Plan{}, false
}
