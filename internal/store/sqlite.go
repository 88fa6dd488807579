package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/map-review/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL DEFAULT 'single',
	status     TEXT NOT NULL DEFAULT 'pending',
	step       TEXT NOT NULL DEFAULT 'extracting_policy',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assessment_items (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	upc           TEXT NOT NULL,
	map_price     TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS competitor_prices (
	id            TEXT PRIMARY KEY,
	item_id       TEXT NOT NULL REFERENCES assessment_items(id),
	source        TEXT NOT NULL,
	price         REAL,
	currency      TEXT NOT NULL DEFAULT 'USD',
	listing_url   TEXT,
	error_message TEXT,
	scraped_at    DATETIME
);

CREATE TABLE IF NOT EXISTS policy_documents (
	id             TEXT PRIMARY KEY,
	assessment_id  TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	file_key       TEXT,
	file_type      TEXT NOT NULL,
	extracted_text TEXT,
	extracted_at   DATETIME
);

CREATE TABLE IF NOT EXISTS policy_analyses (
	id                       TEXT PRIMARY KEY,
	assessment_id            TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	applies_to_all_retailers INTEGER NOT NULL DEFAULT 0,
	segment_description      TEXT,
	consequences_specific    INTEGER NOT NULL DEFAULT 0,
	consequences_summary     TEXT
);

CREATE TABLE IF NOT EXISTS recommendations (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL UNIQUE REFERENCES assessments(id),
	action        TEXT NOT NULL DEFAULT 'discuss',
	reasons       TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);
CREATE INDEX IF NOT EXISTS idx_assessment_items_assessment_id ON assessment_items(assessment_id);
CREATE INDEX IF NOT EXISTS idx_competitor_prices_item_id ON competitor_prices(item_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, params CreateAssessmentParams) (*model.AssessmentView, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal reasons")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assessments (id, mode, status, step, created_at) VALUES (?, ?, ?, ?, ?)`,
		assessment.ID, string(assessment.Mode), string(assessment.Status), string(assessment.Step), now,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert assessment")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assessment_items (id, assessment_id, upc, map_price, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.AssessmentID, item.UPC, item.MAPPrice, now,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert item")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO policy_documents (id, assessment_id, file_key, file_type) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.AssessmentID, doc.FileKey, doc.FileType,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert policy document")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recommendations (id, assessment_id, action, reasons) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.AssessmentID, string(rec.Action), string(reasonsJSON),
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert recommendation")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit assessment")
	}

	return &model.AssessmentView{
		Assessment:     assessment,
		Items:          []model.ItemView{{Item: item}},
		PolicyDocument: &doc,
		Recommendation: &rec,
	}, nil
}

func (s *SQLiteStore) UpdateStatusStep(ctx context.Context, assessmentID string, status model.AssessmentStatus, step model.AssessmentStep) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assessments SET status = ?, step = ? WHERE id = ?`,
		string(status), string(step), assessmentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", assessmentID)
	}
	return checkRowsAffected(res, "assessment", assessmentID)
}

func (s *SQLiteStore) InsertCompetitorPrices(ctx context.Context, itemID string, prices []model.CompetitorPrice) error {
	for _, p := range prices {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO competitor_prices (id, item_id, source, price, currency, listing_url, error_message, scraped_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, itemID, string(p.Source), p.Price, p.Currency, p.ListingURL, p.ErrorMessage, p.ScrapedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert competitor price %s", p.Source)
		}
	}
	return nil
}

func (s *SQLiteStore) UpdatePolicyDocument(ctx context.Context, documentID string, text *string, extractedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE policy_documents SET extracted_text = ?, extracted_at = ? WHERE id = ?`,
		text, extractedAt, documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update policy document %s", documentID)
	}
	return checkRowsAffected(res, "policy document", documentID)
}

func (s *SQLiteStore) CreatePolicyAnalysis(ctx context.Context, analysis model.PolicyAnalysis) (*model.PolicyAnalysis, error) {
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policy_analyses (id, assessment_id, applies_to_all_retailers, segment_description, consequences_specific, consequences_summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		analysis.ID, analysis.AssessmentID, analysis.AppliesToAllRetailers,
		analysis.SegmentDescription, analysis.ConsequencesSpecific, analysis.ConsequencesSummary,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert policy analysis for %s", analysis.AssessmentID)
	}
	return &analysis, nil
}

func (s *SQLiteStore) UpdateRecommendation(ctx context.Context, assessmentID string, action model.RecommendationAction, reasons []string) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal reasons")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET action = ?, reasons = ? WHERE assessment_id = ?`,
		string(action), string(reasonsJSON), assessmentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update recommendation for %s", assessmentID)
	}
	return checkRowsAffected(res, "recommendation", assessmentID)
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, assessmentID string) (*model.AssessmentView, error) {
	var view model.AssessmentView

	err := s.db.QueryRowContext(ctx,
		`SELECT id, mode, status, step, created_at FROM assessments WHERE id = ?`,
		assessmentID,
	).Scan(&view.Assessment.ID, &view.Assessment.Mode, &view.Assessment.Status, &view.Assessment.Step, &view.Assessment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", assessmentID)
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

func (s *SQLiteStore) getItems(ctx context.Context, assessmentID string) ([]model.ItemView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_id, upc, map_price, created_at FROM assessment_items
		 WHERE assessment_id = ? ORDER BY created_at ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	var items []model.ItemView
	for rows.Next() {
		var item model.AssessmentItem
		if err := rows.Scan(&item.ID, &item.AssessmentID, &item.UPC, &item.MAPPrice, &item.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, model.ItemView{Item: item})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list items iterate")
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

func (s *SQLiteStore) getCompetitorPrices(ctx context.Context, itemID string) ([]model.CompetitorPrice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, source, price, currency, listing_url, error_message, scraped_at
		 FROM competitor_prices WHERE item_id = ? ORDER BY source ASC`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list competitor prices")
	}
	defer rows.Close()

	var prices []model.CompetitorPrice
	for rows.Next() {
		var p model.CompetitorPrice
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Source, &p.Price, &p.Currency, &p.ListingURL, &p.ErrorMessage, &p.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor price")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: list competitor prices iterate")
}

func (s *SQLiteStore) getPolicyDocument(ctx context.Context, assessmentID string) (*model.PolicyDocument, error) {
	var doc model.PolicyDocument
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assessment_id, file_key, file_type, extracted_text, extracted_at
		 FROM policy_documents WHERE assessment_id = ?`,
		assessmentID,
	).Scan(&doc.ID, &doc.AssessmentID, &doc.FileKey, &doc.FileType, &doc.ExtractedText, &doc.ExtractedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get policy document")
	}
	return &doc, nil
}

func (s *SQLiteStore) getPolicyAnalysis(ctx context.Context, assessmentID string) (*model.PolicyAnalysis, error) {
	var a model.PolicyAnalysis
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assessment_id, applies_to_all_retailers, segment_description, consequences_specific, consequences_summary
		 FROM policy_analyses WHERE assessment_id = ?`,
		assessmentID,
	).Scan(&a.ID, &a.AssessmentID, &a.AppliesToAllRetailers, &a.SegmentDescription, &a.ConsequencesSpecific, &a.ConsequencesSummary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get policy analysis")
	}
	return &a, nil
}

func (s *SQLiteStore) getRecommendation(ctx context.Context, assessmentID string) (*model.Recommendation, error) {
	var rec model.Recommendation
	var reasonsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assessment_id, action, reasons FROM recommendations WHERE assessment_id = ?`,
		assessmentID,
	).Scan(&rec.ID, &rec.AssessmentID, &rec.Action, &reasonsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get recommendation")
	}
	if err := json.Unmarshal([]byte(reasonsJSON), &rec.Reasons); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal reasons")
	}
	return &rec, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
