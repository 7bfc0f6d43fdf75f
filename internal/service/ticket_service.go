package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/psds-microservice/support-ticket-service/internal/clock"
	"github.com/psds-microservice/support-ticket-service/internal/errs"
	"github.com/psds-microservice/support-ticket-service/internal/model"
)

// TicketServicer: интерфейс хранилища тикетов для HTTP-слоя и команд CLI.
type TicketServicer interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	List(ctx context.Context, filter ListFilter) ([]model.Ticket, error)
	Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error)
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
}

// ListFilter narrows List. Empty fields mean no constraint; set fields are ANDed.
type ListFilter struct {
	Category string
	Priority string
	Status   string
	// Search matches a case-insensitive substring of title or description.
	Search string

	Limit  int
	Offset int
}

// updatableColumns is the whitelist applied to Update change sets.
var updatableColumns = map[string]struct{}{
	"title":       {},
	"description": {},
	"category":    {},
	"priority":    {},
	"status":      {},
}

type TicketService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewTicketService(db *gorm.DB, clk clock.Clock) *TicketService {
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketService{db: db, clock: clk}
}

func (s *TicketService) Create(ctx context.Context, t *model.Ticket) error {
	t.ID = 0
	t.CreatedAt = s.clock.Now().UTC()
	return errors.WithStack(s.db.WithContext(ctx).Create(t).Error)
}

func (s *TicketService) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, errors.WithStack(err)
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, filter ListFilter) ([]model.Ticket, error) {
	items := make([]model.Ticket, 0)
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		tx = tx.Where("priority = ?", filter.Priority)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		tx = tx.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, p, p)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "list tickets")
	}
	return items, nil
}

// ListAfter returns up to limit tickets with id > afterID in id order. Paging
// by the last seen id stays stable while new tickets are created.
func (s *TicketService) ListAfter(ctx context.Context, afterID uint64, limit int) ([]model.Ticket, error) {
	items := make([]model.Ticket, 0, limit)
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "list tickets after id")
	}
	return items, nil
}

func (s *TicketService) Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	filtered := make(map[string]interface{}, len(changes))
	for k, v := range changes {
		if _, ok := updatableColumns[k]; ok {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return t, nil
	}
	if err := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Updates(filtered).Error; err != nil {
		return nil, errors.Wrapf(err, "update ticket %d", id)
	}
	// Updates по map не обновляет все поля структуры, перечитываем
	return s.GetByID(ctx, id)
}

func (s *TicketService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return sqlDB.PingContext(ctx)
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
