package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

// LinkRepository хранилище ссылок. Уникальность short_code обеспечивает
// констрейнт БД, поэтому Create/Rename атомарны относительно конкурентных
// вставок и переименований без глобальных блокировок.
type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	ListAll(ctx context.Context) ([]*models.Link, error)
	Rename(ctx context.Context, oldCode, newCode string) error
	Delete(ctx context.Context, code string) error
	AppendAccess(ctx context.Context, code string, event *models.AccessEvent) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (id, short_code, original_url, owner_username, owner_role, access_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		RETURNING created_at
	`

	var ownerUsername, ownerRole *string
	if link.Owner != nil {
		ownerUsername = &link.Owner.Username
		ownerRole = &link.Owner.Role
	}

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ID,
		link.ShortCode,
		link.OriginalURL,
		ownerUsername,
		ownerRole,
		link.CreatedAt,
	).Scan(&link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	// Строка ссылки и её события читаются в одной read-only транзакции
	// уровня REPEATABLE READ: на READ COMMITTED каждый стейтмент получает
	// свой снимок, и конкурентный append между двумя чтениями дал бы
	// access_count != len(events).
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, short_code, original_url, owner_username, owner_role, access_count, created_at
		FROM links
		WHERE short_code = $1
	`

	link, err := scanLink(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	eventsQuery := `
		SELECT ts, browser, ip, requested_host, platform
		FROM access_events
		WHERE link_id = $1
		ORDER BY ts, id
	`

	rows, err := tx.Query(ctx, eventsQuery, link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query access events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev models.AccessEvent
		if err := rows.Scan(&ev.Timestamp, &ev.Browser, &ev.IP, &ev.RequestedHost, &ev.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan access event: %w", err)
		}
		link.AccessLog = append(link.AccessLog, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit read tx: %w", err)
	}

	return link, nil
}

func (r *linkRepository) ListAll(ctx context.Context) ([]*models.Link, error) {
	// Тот же уровень изоляции, что и в GetByShortCode: ссылки и события
	// читаются из одного снимка.
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, short_code, original_url, owner_username, owner_role, access_count, created_at
		FROM links
	`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}

	byID := make(map[uuid.UUID]*models.Link)
	var links []*models.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		byID[link.ID] = link
		links = append(links, link)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	eventsQuery := `
		SELECT link_id, ts, browser, ip, requested_host, platform
		FROM access_events
		ORDER BY ts, id
	`

	evRows, err := tx.Query(ctx, eventsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query access events: %w", err)
	}
	defer evRows.Close()

	for evRows.Next() {
		var linkID uuid.UUID
		var ev models.AccessEvent
		if err := evRows.Scan(&linkID, &ev.Timestamp, &ev.Browser, &ev.IP, &ev.RequestedHost, &ev.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan access event: %w", err)
		}
		if link, ok := byID[linkID]; ok {
			link.AccessLog = append(link.AccessLog, ev)
		}
	}
	if err := evRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit read tx: %w", err)
	}

	return links, nil
}

func (r *linkRepository) Rename(ctx context.Context, oldCode, newCode string) error {
	query := `UPDATE links SET short_code = $2 WHERE short_code = $1`

	result, err := r.db.Pool.Exec(ctx, query, oldCode, newCode)
	if err != nil {
		// Два конкурентных переименования на один newCode: констрейнт
		// пропустит ровно одно, второе получает конфликт.
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to rename link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) Delete(ctx context.Context, code string) error {
	// Жёсткое удаление: уходит и строка ссылки, и вся её история.
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var linkID uuid.UUID
	err = tx.QueryRow(ctx, `DELETE FROM links WHERE short_code = $1 RETURNING id`, code).Scan(&linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM access_events WHERE link_id = $1`, linkID); err != nil {
		return fmt.Errorf("failed to delete access events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

func (r *linkRepository) AppendAccess(ctx context.Context, code string, event *models.AccessEvent) error {
	// Инкремент счётчика и добавление события одним стейтментом: либо
	// происходит и то и другое, либо ничего. Если код уже удалён
	// конкурентным delete, CTE не находит строку и вставка не выполняется.
	query := `
		WITH target AS (
			UPDATE links
			SET access_count = access_count + 1
			WHERE short_code = $1
			RETURNING id
		)
		INSERT INTO access_events (link_id, ts, browser, ip, requested_host, platform)
		SELECT id, $2, $3, $4, $5, $6 FROM target
	`

	_, err := r.db.Pool.Exec(ctx, query,
		code,
		event.Timestamp,
		event.Browser,
		event.IP,
		event.RequestedHost,
		event.Platform,
	)
	if err != nil {
		return fmt.Errorf("failed to append access event: %w", err)
	}

	return nil
}

// rowScanner покрывает pgx.Row и pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.Link, error) {
	link := &models.Link{}
	var ownerUsername, ownerRole *string

	err := row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&ownerUsername,
		&ownerRole,
		&link.AccessCount,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownerUsername != nil {
		link.Owner = &models.Owner{Username: *ownerUsername}
		if ownerRole != nil {
			link.Owner.Role = *ownerRole
		}
	}

	return link, nil
}

// Проверка на нарушение уникальности
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
