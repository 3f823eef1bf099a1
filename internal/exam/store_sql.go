package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examportal/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	grader grading.Grader
}

func NewSQLStore(db *sql.DB, driver string, g grading.Grader) *SQLStore {
	if g == nil {
		g = grading.NewDefaultGrader()
	}
	return &SQLStore{db: db, driver: driver, grader: g}
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	sj, err := json.Marshal(t.Sections)
	if err != nil {
		return err
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,name,duration_min,sections_json,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, duration_min=EXCLUDED.duration_min, sections_json=EXCLUDED.sections_json`,
		t.ID, t.Name, t.DurationMin, string(sj), t.CreatedAt)
	return err
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,duration_min,sections_json,created_at FROM tests WHERE id=$1`, id)
	var t Test
	var sj string
	if err := row.Scan(&t.ID, &t.Name, &t.DurationMin, &sj, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrNotFound
		}
		return Test{}, err
	}
	if err := json.Unmarshal([]byte(sj), &t.Sections); err != nil {
		return Test{}, fmt.Errorf("decode sections of %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error) {
	q := `SELECT id,name,duration_min,sections_json,created_at FROM tests`
	var args []any
	if term := strings.TrimSpace(opts.Q); term != "" {
		q += ` WHERE LOWER(name) LIKE $1`
		args = append(args, "%"+strings.ToLower(term)+"%")
	}
	q += ` ORDER BY created_at DESC, id`
	q += s.limitClause(opts.Limit, opts.Offset, &args)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TestSummary{}
	for rows.Next() {
		var t Test
		var sj string
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMin, &sj, &t.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(sj), &t.Sections)
		out = append(out, summarize(t))
	}
	return out, rows.Err()
}

func (s *SQLStore) StartAttempt(ctx context.Context, testID, userID string, now time.Time) (Attempt, bool, error) {
	a, err := s.FindAttempt(ctx, testID, userID)
	switch {
	case err == nil && a.Submitted():
		return Attempt{}, false, ErrAlreadySubmitted
	case err == nil:
		return a, false, nil
	case !errors.Is(err, ErrNotFound):
		return Attempt{}, false, err
	}

	t, err := s.GetTest(ctx, testID)
	if err != nil {
		return Attempt{}, false, err
	}
	started := now.UTC().Truncate(time.Millisecond)
	// a concurrent start for the same (test, user) loses on the unique key
	// and reads the winner's row
	res, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,test_id,user_id,status,duration_sec,score,max_score,started_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
		ON CONFLICT (test_id,user_id) DO NOTHING`,
		uuid.NewString(), testID, userID, StatusInProgress, t.DurationSec(), t.MaxScore(), started.UnixMilli())
	if err != nil {
		return Attempt{}, false, err
	}
	n, _ := res.RowsAffected()
	got, err := s.FindAttempt(ctx, testID, userID)
	if err != nil {
		return Attempt{}, false, err
	}
	if got.Submitted() {
		return Attempt{}, false, ErrAlreadySubmitted
	}
	return got, n == 1, nil
}

const attemptCols = `id,test_id,user_id,status,duration_sec,score,max_score,started_at,submitted_at`

func (s *SQLStore) FindAttempt(ctx context.Context, testID, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE test_id=$1 AND user_id=$2`, testID, userID)
	return s.loadAttempt(ctx, row)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	return s.loadAttempt(ctx, row)
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var where []string
	var args []any
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("test_id", opts.TestID)
	add("user_id", opts.UserID)
	add("status", opts.Status)

	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC`
	q += s.limitClause(opts.Limit, opts.Offset, &args)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Answers, err = s.answers(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID string, ans Answer) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	lock := ""
	if s.driver == "postgres" {
		lock = " FOR UPDATE"
	}
	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`+lock, attemptID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if status == StatusSubmitted {
		return false, ErrAlreadySubmitted
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO attempt_answers (attempt_id,section_id,question_id,selected_option,numerical_answer,seq)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (attempt_id,section_id,question_id) DO UPDATE
		SET selected_option=EXCLUDED.selected_option, numerical_answer=EXCLUDED.numerical_answer, seq=EXCLUDED.seq
		WHERE attempt_answers.seq <= EXCLUDED.seq`,
		attemptID, ans.SectionID, ans.QuestionID, nullString(ans.SelectedOption), nullFloat(ans.NumericalAnswer), ans.Seq)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) Submit(ctx context.Context, attemptID string, now time.Time) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Submitted() {
		return a, ErrAlreadySubmitted
	}
	t, err := s.GetTest(ctx, a.TestID)
	if err != nil {
		return Attempt{}, err
	}
	at := now.UTC().Truncate(time.Millisecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	// flip the status first so saves racing with us see a submitted attempt
	res, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, submitted_at=$2 WHERE id=$3 AND status=$4`,
		StatusSubmitted, at.UnixMilli(), attemptID, StatusInProgress)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		cur, err := s.GetAttempt(ctx, attemptID)
		if err != nil {
			return Attempt{}, err
		}
		return cur, ErrAlreadySubmitted
	}
	if a.Answers, err = s.answers(ctx, tx, attemptID); err != nil {
		return Attempt{}, err
	}
	graded := gradeAttempt(ctx, s.grader, t, a)
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET score=$1, max_score=$2 WHERE id=$3`,
		graded.Score, graded.MaxScore, attemptID); err != nil {
		return Attempt{}, err
	}
	for _, ans := range graded.Answers {
		if _, err := tx.ExecContext(ctx, `UPDATE attempt_answers SET is_correct=$1, marks_awarded=$2
			WHERE attempt_id=$3 AND section_id=$4 AND question_id=$5`,
			ans.IsCorrect, ans.MarksAwarded, attemptID, ans.SectionID, ans.QuestionID); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (Attempt, error) {
	var a Attempt
	var started int64
	var submitted sql.NullInt64
	if err := row.Scan(&a.ID, &a.TestID, &a.UserID, &a.Status, &a.DurationSec, &a.Score, &a.MaxScore, &started, &submitted); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.UnixMilli(started).UTC()
	if submitted.Valid {
		at := time.UnixMilli(submitted.Int64).UTC()
		a.SubmittedAt = &at
	}
	return a, nil
}

func (s *SQLStore) loadAttempt(ctx context.Context, row *sql.Row) (Attempt, error) {
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if a.Answers, err = s.answers(ctx, s.db, a.ID); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) answers(ctx context.Context, q querier, attemptID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, `SELECT section_id,question_id,selected_option,numerical_answer,seq,is_correct,marks_awarded
		FROM attempt_answers WHERE attempt_id=$1 ORDER BY section_id, question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var ans Answer
		var opt sql.NullString
		var num sql.NullFloat64
		if err := rows.Scan(&ans.SectionID, &ans.QuestionID, &opt, &num, &ans.Seq, &ans.IsCorrect, &ans.MarksAwarded); err != nil {
			return nil, err
		}
		if opt.Valid {
			v := opt.String
			ans.SelectedOption = &v
		}
		if num.Valid {
			v := num.Float64
			ans.NumericalAnswer = &v
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

func (s *SQLStore) limitClause(limit, offset int, args *[]any) string {
	out := ""
	if limit > 0 {
		*args = append(*args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(*args))
	} else if offset > 0 && s.driver != "postgres" {
		// sqlite only accepts OFFSET after a LIMIT
		out += " LIMIT -1"
	}
	if offset > 0 {
		*args = append(*args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return out
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
