package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/map-review/internal/db"
	"github.com/sells-group/map-review/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL DEFAULT 'single',
	status     TEXT NOT NULL DEFAULT 'pending',
	step       TEXT NOT NULL DEFAULT 'extracting_policy',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessment_items (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	upc           TEXT NOT NULL,
	map_price     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitor_prices (
	id            TEXT PRIMARY KEY,
	item_id       TEXT NOT NULL REFERENCES assessment_items(id),
	source        TEXT NOT NULL,
	price         DOUBLE PRECISION,
	currency      TEXT NOT NULL DEFAULT 'USD',
	listing_url   TEXT,
	error_message TEXT,
	scraped_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS policy_documents (
	id             TEXT PRIMARY KEY,
	assessment_id  TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	file_key       TEXT,
	file_type      TEXT NOT NULL,
	extracted_text TEXT,
	extracted_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS policy_analyses (
	id                       TEXT PRIMARY KEY,
	assessment_id            TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	applies_to_all_retailers BOOLEAN NOT NULL DEFAULT false,
	segment_description      TEXT,
	consequences_specific    BOOLEAN NOT NULL DEFAULT false,
	consequences_summary     TEXT
);

CREATE TABLE IF NOT EXISTS recommendations (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	action        TEXT NOT NULL DEFAULT 'discuss',
	reasons       JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);
CREATE INDEX IF NOT EXISTS idx_assessment_items_assessment_id ON assessment_items(assessment_id);
CREATE INDEX IF NOT EXISTS idx_competitor_prices_item_id ON competitor_prices(item_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, params CreateAssessmentParams) (*model.AssessmentView, error) {
	now := time.Now().UTC()
	assessment := model.Assessment{
		ID:        uuid.New().String(),
		Mode:      model.ModeSingle,
		Status:    model.AssessmentStatusPending,
		Step:      model.StepExtractingPolicy,
		CreatedAt: now,
	}
	item := model.AssessmentItem{
		ID:           uuid.New().String(),
		AssessmentID: assessment.ID,
		UPC:          params.UPC,
		MAPPrice:     params.MAPPrice,
		CreatedAt:    now,
	}
	doc := model.PolicyDocument{
		ID:           uuid.New().String(),
		AssessmentID: assessment.ID,
		FileKey:      params.FileKey,
		FileType:     params.FileType,
	}
	rec := model.Recommendation{
		ID:           uuid.New().String(),
		AssessmentID: assessment.ID,
		Action:       model.ActionDiscuss,
		Reasons:      []string{"Policy review in progress."},
	}

	reasonsJSON, err := json.Marshal(rec.Reasons)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal reasons")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO assessments (id, mode, status, step, created_at) VALUES ($1, $2, $3, $4, $5)`,
		assessment.ID, string(assessment.Mode), string(assessment.Status), string(assessment.Step), now,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert assessment")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO assessment_items (id, assessment_id, upc, map_price, created_at) VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.AssessmentID, item.UPC, item.MAPPrice, now,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert item")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO policy_documents (id, assessment_id, file_key, file_type) VALUES ($1, $2, $3, $4)`,
		doc.ID, doc.AssessmentID, doc.FileKey, doc.FileType,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert policy document")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO recommendations (id, assessment_id, action, reasons) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.AssessmentID, string(rec.Action), reasonsJSON,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert recommendation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit assessment")
	}

	return &model.AssessmentView{
		Assessment:     assessment,
		Items:          []model.ItemView{{Item: item}},
		PolicyDocument: &doc,
		Recommendation: &rec,
	}, nil
}

func (s *PostgresStore) UpdateStatusStep(ctx context.Context, assessmentID string, status model.AssessmentStatus, step model.AssessmentStep) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, step = $2 WHERE id = $3`,
		string(status), string(step), assessmentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", assessmentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("assessment not found: %s", assessmentID)
	}
	return nil
}

func (s *PostgresStore) InsertCompetitorPrices(ctx context.Context, itemID string, prices []model.CompetitorPrice) error {
	for _, p := range prices {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO competitor_prices (id, item_id, source, price, currency, listing_url, error_message, scraped_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, itemID, string(p.Source), p.Price, p.Currency, p.ListingURL, p.ErrorMessage, p.ScrapedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert competitor price %s", p.Source)
		}
	}
	return nil
}

func (s *PostgresStore) UpdatePolicyDocument(ctx context.Context, documentID string, text *string, extractedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policy_documents SET extracted_text = $1, extracted_at = $2 WHERE id = $3`,
		text, extractedAt, documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update policy document %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("policy document not found: %s", documentID)
	}
	return nil
}

func (s *PostgresStore) CreatePolicyAnalysis(ctx context.Context, analysis model.PolicyAnalysis) (*model.PolicyAnalysis, error) {
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO policy_analyses (id, assessment_id, applies_to_all_retailers, segment_description, consequences_specific, consequences_summary)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		analysis.ID, analysis.AssessmentID, analysis.AppliesToAllRetailers,
		analysis.SegmentDescription, analysis.ConsequencesSpecific, analysis.ConsequencesSummary,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert policy analysis for %s", analysis.AssessmentID)
	}
	return &analysis, nil
}

func (s *PostgresStore) UpdateRecommendation(ctx context.Context, assessmentID string, action model.RecommendationAction, reasons []string) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal reasons")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET action = $1, reasons = $2 WHERE assessment_id = $3`,
		string(action), reasonsJSON, assessmentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update recommendation for %s", assessmentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("recommendation not found for assessment: %s", assessmentID)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, assessmentID string) (*model.AssessmentView, error) {
	var view model.AssessmentView

	err := s.pool.QueryRow(ctx,
		`SELECT id, mode, status, step, created_at FROM assessments WHERE id = $1`,
		assessmentID,
	).Scan(&view.Assessment.ID, &view.Assessment.Mode, &view.Assessment.Status, &view.Assessment.Step, &view.Assessment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get assessment %s", assessmentID)
	}

	items, err := s.getItems(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	view.Items = items

	doc, err := s.getPolicyDocument(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	view.PolicyDocument = doc

	analysis, err := s.getPolicyAnalysis(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	view.PolicyAnalysis = analysis

	rec, err := s.getRecommendation(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	view.Recommendation = rec

	return &view, nil
}

func (s *PostgresStore) getItems(ctx context.Context, assessmentID string) ([]model.ItemView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, upc, map_price, created_at FROM assessment_items
		 WHERE assessment_id = $1 ORDER BY created_at ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var items []model.ItemView
	for rows.Next() {
		var item model.AssessmentItem
		if err := rows.Scan(&item.ID, &item.AssessmentID, &item.UPC, &item.MAPPrice, &item.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, model.ItemView{Item: item})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list items iterate")
	}

	for i := range items {
		prices, err := s.getCompetitorPrices(ctx, items[i].Item.ID)
		if err != nil {
			return nil, err
		}
		items[i].CompetitorPrices = prices
	}
	return items, nil
}

func (s *PostgresStore) getCompetitorPrices(ctx context.Context, itemID string) ([]model.CompetitorPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, source, price, currency, listing_url, error_message, scraped_at
		 FROM competitor_prices WHERE item_id = $1 ORDER BY source ASC`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list competitor prices")
	}
	defer rows.Close()

	var prices []model.CompetitorPrice
	for rows.Next() {
		var p model.CompetitorPrice
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Source, &p.Price, &p.Currency, &p.ListingURL, &p.ErrorMessage, &p.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor price")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "postgres: list competitor prices iterate")
}

func (s *PostgresStore) getPolicyDocument(ctx context.Context, assessmentID string) (*model.PolicyDocument, error) {
	var doc model.PolicyDocument
	err := s.pool.QueryRow(ctx,
		`SELECT id, assessment_id, file_key, file_type, extracted_text, extracted_at
		 FROM policy_documents WHERE assessment_id = $1`,
		assessmentID,
	).Scan(&doc.ID, &doc.AssessmentID, &doc.FileKey, &doc.FileType, &doc.ExtractedText, &doc.ExtractedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get policy document")
	}
	return &doc, nil
}

func (s *PostgresStore) getPolicyAnalysis(ctx context.Context, assessmentID string) (*model.PolicyAnalysis, error) {
	var a model.PolicyAnalysis
	err := s.pool.QueryRow(ctx,
		`SELECT id, assessment_id, applies_to_all_retailers, segment_description, consequences_specific, consequences_summary
		 FROM policy_analyses WHERE assessment_id = $1`,
		assessmentID,
	).Scan(&a.ID, &a.AssessmentID, &a.AppliesToAllRetailers, &a.SegmentDescription, &a.ConsequencesSpecific, &a.ConsequencesSummary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get policy analysis")
	}
	return &a, nil
}

func (s *PostgresStore) getRecommendation(ctx context.Context, assessmentID string) (*model.Recommendation, error) {
	var rec model.Recommendation
	var reasonsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, assessment_id, action, reasons FROM recommendations WHERE assessment_id = $1`,
		assessmentID,
	).Scan(&rec.ID, &rec.AssessmentID, &rec.Action, &reasonsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get recommendation")
	}
	if err := json.Unmarshal(reasonsJSON, &rec.Reasons); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal reasons")
	}
	return &rec, nil
}
