package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

var sourceColumns = []string{
	"id", "code", "name", "url_pattern", "parser",
	"fetch_interval_minutes", "is_active", "metadata", "created_at", "updated_at",
}

type SourceRepository struct {
	db DB
}

func NewSourceRepository(db DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func scanSource(row pgx.Row) (*models.Source, error) {
	var s models.Source
	if err := row.Scan(
		&s.ID, &s.Code, &s.Name, &s.URLPattern, &s.Parser,
		&s.FetchIntervalMinutes, &s.IsActive, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreate 는 code 로 소스를 찾고, 없으면 비활성 상태로 새로 등록한다.
// 동시에 같은 code 를 등록하면 한쪽은 ON CONFLICT 로 빠지고 기존 행을 다시 읽는다.
func (r *SourceRepository) GetOrCreate(ctx context.Context, cfg models.SourceConfig) (*models.Source, bool, error) {
	existing, err := r.FindByCode(ctx, cfg.Code)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrSourceNotFound) {
		return nil, false, err
	}

	interval := cfg.FetchIntervalMinutes
	if interval <= 0 {
		interval = 60
	}
	meta, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode source metadata: %w", err)
	}

	row, err := queryRowBuilder(ctx, r.db, psql.Insert("source").
		Columns("code", "name", "url_pattern", "parser", "fetch_interval_minutes", "metadata", "updated_at").
		Values(cfg.Code, cfg.Name, cfg.URLPattern, cfg.Parser, interval, meta, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (code) DO NOTHING RETURNING " + strings.Join(sourceColumns, ", ")))
	if err != nil {
		return nil, false, err
	}
	created, err := scanSource(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert source %s: %w", cfg.Code, err)
	}

	existing, err = r.FindByCode(ctx, cfg.Code)
	if err != nil {
		return nil, false, fmt.Errorf("failed to locate source %s after insert attempt: %w", cfg.Code, err)
	}
	return existing, false, nil
}

func (r *SourceRepository) FindByCode(ctx context.Context, code string) (*models.Source, error) {
	return r.findOne(ctx, sq.Eq{"code": code})
}

func (r *SourceRepository) FindByID(ctx context.Context, id int64) (*models.Source, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *SourceRepository) findOne(ctx context.Context, where sq.Eq) (*models.Source, error) {
	row, err := queryRowBuilder(ctx, r.db, psql.Select(sourceColumns...).From("source").Where(where))
	if err != nil {
		return nil, err
	}
	s, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return s, nil
}

// List 는 모든 소스를 code 순으로 반환한다.
func (r *SourceRepository) List(ctx context.Context) ([]models.Source, error) {
	rows, err := queryBuilder(ctx, r.db, psql.Select(sourceColumns...).From("source").OrderBy("code"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetActive 는 소스의 활성 여부를 바꾼다.
func (r *SourceRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := execBuilder(ctx, r.db, psql.Update("source").
		Set("is_active", active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"code": code}))
	if err != nil {
		return fmt.Errorf("failed to update source %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// SeedFromFile 은 JSON 배열 형식의 소스 설정 파일을 읽어 없는 소스만 등록한다.
// 파일이 없으면 아무것도 하지 않는다. 반환값은 (새로 만든 수, 전체 수) 이다.
func (r *SourceRepository) SeedFromFile(ctx context.Context, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read source seed file %s: %w", path, err)
	}

	var configs []models.SourceConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return 0, 0, fmt.Errorf("source seed file must contain a list of source configs: %w", err)
	}

	created := 0
	for i, cfg := range configs {
		if cfg.Code == "" || cfg.Name == "" {
			return created, len(configs), fmt.Errorf("source config #%d missing code or name", i)
		}
		_, isNew, err := r.GetOrCreate(ctx, cfg)
		if err != nil {
			return created, len(configs), err
		}
		if isNew {
			created++
		}
	}
	return created, len(configs), nil
}
